package rewards

import (
	"math"

	"nimo/identity-platform/verification-engine/internal/contribution"
)

// baseAwards maps contribution categories to base NIMO token amounts
var baseAwards = map[contribution.Category]int64{
	contribution.CategoryEntrepreneurship: 80,
	contribution.CategoryCoding:           75,
	contribution.CategoryLeadership:       70,
	contribution.CategoryEnvironmental:    70,
	contribution.CategoryActivism:         65,
	contribution.CategoryEducation:        60,
	contribution.CategoryCommunity:        60,
	contribution.CategoryVolunteer:        50,
	contribution.CategoryOther:            50,
}

// Calculation is a pure reward computation derived from a verified decision.
// The calculator never mutates balances; the ledger bridge applies the
// result idempotently.
type Calculation struct {
	NimoAmount    int64   `json:"nimo_amount"`
	BaseUSDC      float64 `json:"base_usdc"`
	Multiplier    float64 `json:"multiplier"`
	FinalUSDC     float64 `json:"final_usdc"`
	Eligible      bool    `json:"eligible"`
	ThresholdUsed float64 `json:"threshold_used"`
}

// Config controls secondary-currency payouts
type Config struct {
	// MinConfidenceThreshold gates USDC eligibility and selects the
	// multiplier branch
	MinConfidenceThreshold float64 `json:"min_confidence_threshold"`

	// ConversionRate converts NIMO tokens to USDC
	ConversionRate float64 `json:"conversion_rate"`

	// MinPayout is the smallest USDC amount worth paying out
	MinPayout float64 `json:"min_payout"`

	// USDCPaymentsEnabled switches the secondary reward on or off
	USDCPaymentsEnabled bool `json:"usdc_payments_enabled"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MinConfidenceThreshold: 0.8,
		ConversionRate:         0.01,
		MinPayout:              0.5,
		USDCPaymentsEnabled:    true,
	}
}

// Calculator converts verified decisions into dual-currency rewards
type Calculator struct {
	cfg Config
}

// NewCalculator creates a reward calculator
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// BaseAward returns the base NIMO amount for a category; unknown categories
// fall back to the "other" base.
func BaseAward(category contribution.Category) int64 {
	if base, ok := baseAwards[category]; ok {
		return base
	}
	return baseAwards[contribution.CategoryOther]
}

// Calculate computes the NIMO award and the conditional USDC reward for a
// verified contribution. Only meaningful for verified decisions; confidence
// is clamped to [0,1].
func (c *Calculator) Calculate(confidence float64, category contribution.Category) Calculation {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	base := BaseAward(category)
	nimo := int64(math.Floor(float64(base) * (0.5 + confidence*0.5)))
	return c.secondary(nimo, confidence)
}

// CalculateFromAmount computes the secondary reward for an explicit NIMO
// amount, used by the what-if preview endpoint
func (c *Calculator) CalculateFromAmount(nimoAmount int64, confidence float64) Calculation {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return c.secondary(nimoAmount, confidence)
}

func (c *Calculator) secondary(nimo int64, confidence float64) Calculation {
	baseUSDC := float64(nimo) * c.cfg.ConversionRate

	var multiplier float64
	if confidence >= c.cfg.MinConfidenceThreshold {
		multiplier = clamp(confidence+0.2, 0.1, 1.5)
	} else {
		multiplier = clamp(confidence-0.2, 0.1, 1.5)
	}

	finalUSDC := roundCents(baseUSDC * multiplier)

	eligible := c.cfg.USDCPaymentsEnabled &&
		confidence >= c.cfg.MinConfidenceThreshold &&
		finalUSDC >= c.cfg.MinPayout

	return Calculation{
		NimoAmount:    nimo,
		BaseUSDC:      baseUSDC,
		Multiplier:    multiplier,
		FinalUSDC:     finalUSDC,
		Eligible:      eligible,
		ThresholdUsed: c.cfg.MinConfidenceThreshold,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
