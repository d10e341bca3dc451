package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProcessFailed indicates the reasoning process crashed, timed out, or
// returned a malformed response. Callers treat it as a backend outage.
var ErrProcessFailed = errors.New("reasoning process failed")

// Query is one scoring request sent to the reasoning engine
type Query struct {
	ContributionID string  `json:"contribution_id"`
	Category       string  `json:"category"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	EvidenceKind   string  `json:"evidence_kind"`
	EvidenceScore  float64 `json:"evidence_score"`
	Reputation     float64 `json:"reputation"`
	PastCount      int     `json:"past_count"`
	VerifiedRate   float64 `json:"verified_rate"`
}

// Reply is the reasoning engine's answer to a query
type Reply struct {
	Verified    bool    `json:"verified"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Client evaluates queries against an external reasoning process.
// Implementations must honor the context deadline.
type Client interface {
	Evaluate(ctx context.Context, q Query) (*Reply, error)
}

// HTTPClient talks to the reasoning engine over its JSON HTTP endpoint.
// The engine runs as a long-lived service rather than a process spawned per
// query, so multiple scoring calls share one session.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// Config contains reasoning client configuration
type Config struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// NewHTTPClient creates a reasoning client with a bounded per-call timeout
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Evaluate sends one scoring query to the reasoning engine
func (c *HTTPClient) Evaluate(ctx context.Context, q Query) (*Reply, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProcessFailed, resp.StatusCode)
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrProcessFailed, err)
	}
	if reply.Confidence < 0 || reply.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %.4f out of range", ErrProcessFailed, reply.Confidence)
	}

	return &reply, nil
}
