package engine

import (
	"context"
	"errors"
	"fmt"

	"nimo/identity-platform/verification-engine/internal/reasoning"
)

// MettaBackend delegates verification to the external MeTTa reasoning
// service. Evidence evaluation, confidence scoring, and fraud inputs are
// prepared locally; the reasoning engine makes the final call.
type MettaBackend struct {
	client         reasoning.Client
	minVerifyScore float64
}

// NewMettaBackend creates a backend over the given reasoning client
func NewMettaBackend(client reasoning.Client, minVerifyScore float64) *MettaBackend {
	return &MettaBackend{
		client:         client,
		minVerifyScore: minVerifyScore,
	}
}

// Name implements Backend
func (b *MettaBackend) Name() string { return "metta" }

// Validate implements Backend. Any reasoning-process failure maps to
// ErrBackendUnavailable so the selector can downgrade.
func (b *MettaBackend) Validate(ctx context.Context, input ValidationInput) (*ValidationResult, error) {
	c := input.Contribution

	best, evidenceScore, ok := BestEvidence(c.Evidence)
	if !ok {
		return &ValidationResult{
			Verified:    false,
			Confidence:  0,
			Explanation: "no usable evidence provided",
		}, nil
	}

	query := reasoning.Query{
		ContributionID: c.ID.String(),
		Category:       string(c.Category),
		Title:          c.Title,
		Description:    c.Description,
		EvidenceKind:   string(best.Kind),
		EvidenceScore:  evidenceScore,
	}
	if input.Signal != nil {
		query.Reputation = input.Signal.ReputationScore
		query.PastCount = input.Signal.PastContributions
		query.VerifiedRate = input.Signal.VerificationRate
	}

	reply, err := b.client.Evaluate(ctx, query)
	if err != nil {
		if errors.Is(err, reasoning.ErrProcessFailed) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil, err
	}

	verified := reply.Verified && reply.Confidence >= b.minVerifyScore
	return &ValidationResult{
		Verified:    verified,
		Confidence:  reply.Confidence,
		Explanation: reply.Explanation,
	}, nil
}
