package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// FallbackConfig configures the deterministic fallback backend
type FallbackConfig struct {
	// MinVerifyScore is the confidence floor for a verified outcome
	MinVerifyScore float64 `json:"min_verify_score"`

	// Noise adds simulated scoring variance to emulate the real engine.
	// Off by default; never enable it where reproducible confidence
	// scores matter.
	Noise bool `json:"noise"`

	// NoiseSeed seeds the variance source so tests stay deterministic
	NoiseSeed int64 `json:"noise_seed"`

	// NoiseSpread bounds the variance applied to each score (+/- spread/2)
	NoiseSpread float64 `json:"noise_spread"`
}

// FallbackBackend is a self-contained reimplementation of the scoring
// formulas, used when the reasoning service is unavailable and for test
// determinism. Deterministic unless noise is explicitly enabled.
type FallbackBackend struct {
	cfg FallbackConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackBackend creates the fallback backend
func NewFallbackBackend(cfg FallbackConfig) *FallbackBackend {
	if cfg.MinVerifyScore <= 0 {
		cfg.MinVerifyScore = 0.6
	}
	if cfg.NoiseSpread <= 0 {
		cfg.NoiseSpread = 0.1
	}
	b := &FallbackBackend{cfg: cfg}
	if cfg.Noise {
		b.rng = rand.New(rand.NewSource(cfg.NoiseSeed))
	}
	return b
}

// Name implements Backend
func (b *FallbackBackend) Name() string { return "fallback" }

// Validate implements Backend using the in-process scoring formulas
func (b *FallbackBackend) Validate(ctx context.Context, input ValidationInput) (*ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	c := input.Contribution
	best, evidenceScore, ok := BestEvidence(c.Evidence)
	if !ok {
		return &ValidationResult{
			Verified:    false,
			Confidence:  0,
			Explanation: "no usable evidence provided",
		}, nil
	}

	var reputation, rate float64
	var past int
	if input.Signal != nil {
		reputation = input.Signal.ReputationScore
		past = input.Signal.PastContributions
		rate = input.Signal.VerificationRate
	}

	confidence := ScoreConfidence(evidenceScore, reputation, past, rate)
	confidence = b.applyNoise(confidence)

	verified := confidence >= b.cfg.MinVerifyScore
	explanation := fmt.Sprintf(
		"fallback scoring: %s evidence (%s) scored %.2f, combined confidence %.2f",
		best.Kind, best.URL, evidenceScore, confidence)
	if !verified {
		explanation = fmt.Sprintf("%s, below verification floor %.2f", explanation, b.cfg.MinVerifyScore)
	}

	return &ValidationResult{
		Verified:    verified,
		Confidence:  confidence,
		Explanation: explanation,
	}, nil
}

func (b *FallbackBackend) applyNoise(confidence float64) float64 {
	if b.rng == nil {
		return confidence
	}
	b.mu.Lock()
	delta := (b.rng.Float64() - 0.5) * b.cfg.NoiseSpread
	b.mu.Unlock()
	confidence += delta
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
