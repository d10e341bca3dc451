package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"nimo/identity-platform/verification-engine/internal/contribution"
)

// ErrBackendUnavailable indicates the decision backend could not produce a
// result (process crash, timeout, malformed response). It triggers the
// sticky fallback switch and is not fatal to the request.
var ErrBackendUnavailable = errors.New("decision backend unavailable")

// ValidationInput is the full input a decision backend sees for one
// contribution
type ValidationInput struct {
	Contribution *contribution.Contribution
	Signal       *contribution.SubmitterSignal
}

// ValidationResult is the verified/confidence/explanation triple produced by
// a decision backend
type ValidationResult struct {
	Verified    bool    `json:"verified"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Backend produces verification decisions. Implementations expose identical
// signatures so callers are backend-agnostic.
type Backend interface {
	// Name identifies the backend in decisions and logs
	Name() string

	// Validate scores one contribution. A non-nil error must wrap
	// ErrBackendUnavailable when the failure is an availability problem.
	Validate(ctx context.Context, input ValidationInput) (*ValidationResult, error)
}

// Selector routes validation calls to the real backend and downgrades to the
// fallback on the first availability failure. The downgrade is sticky for the
// process lifetime: alternating between backends per call would make
// confidence scores non-reproducible within a session.
type Selector struct {
	primary  Backend
	fallback Backend
	logger   *zap.Logger

	mu       sync.Mutex
	degraded bool
}

// NewSelector creates a backend selector that prefers primary
func NewSelector(primary, fallback Backend, logger *zap.Logger) *Selector {
	return &Selector{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Name reports the currently selected backend
func (s *Selector) Name() string {
	if s.Degraded() {
		return s.fallback.Name()
	}
	return s.primary.Name()
}

// Degraded reports whether the selector has switched to the fallback
func (s *Selector) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Validate runs the contribution through the active backend. On
// ErrBackendUnavailable from the primary it switches to the fallback and
// retries the same input once.
func (s *Selector) Validate(ctx context.Context, input ValidationInput) (*ValidationResult, error) {
	if !s.Degraded() {
		result, err := s.primary.Validate(ctx, input)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		s.downgrade(err)
	}
	return s.fallback.Validate(ctx, input)
}

func (s *Selector) downgrade(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return
	}
	s.degraded = true
	s.logger.Warn("Decision backend degraded, switching to fallback for process lifetime",
		zap.String("primary", s.primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(cause))
}
