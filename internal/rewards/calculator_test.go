package rewards

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nimo/identity-platform/verification-engine/internal/contribution"
)

func testConfig() Config {
	return Config{
		MinConfidenceThreshold: 0.8,
		ConversionRate:         0.01,
		MinPayout:              0.5,
		USDCPaymentsEnabled:    true,
	}
}

func TestCalculateCodingAward(t *testing.T) {
	calc := NewCalculator(testConfig())

	// 75 * (0.5 + 0.95*0.5) = 75 * 0.975 = 73.125, floored
	result := calc.Calculate(0.95, contribution.CategoryCoding)
	assert.Equal(t, int64(73), result.NimoAmount)
}

func TestCalculateBaseTable(t *testing.T) {
	cases := []struct {
		category contribution.Category
		base     int64
	}{
		{contribution.CategoryEntrepreneurship, 80},
		{contribution.CategoryCoding, 75},
		{contribution.CategoryLeadership, 70},
		{contribution.CategoryEnvironmental, 70},
		{contribution.CategoryActivism, 65},
		{contribution.CategoryEducation, 60},
		{contribution.CategoryCommunity, 60},
		{contribution.CategoryVolunteer, 50},
		{contribution.CategoryOther, 50},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.base, BaseAward(tc.category), "category %s", tc.category)
	}

	// unknown categories fall back to "other"
	assert.Equal(t, int64(50), BaseAward(contribution.Category("interpretive-dance")))
}

func TestCalculateFullConfidencePaysFullBase(t *testing.T) {
	calc := NewCalculator(testConfig())
	result := calc.Calculate(1.0, contribution.CategoryEntrepreneurship)
	assert.Equal(t, int64(80), result.NimoAmount)
}

func TestCalculateZeroConfidencePaysHalfBase(t *testing.T) {
	calc := NewCalculator(testConfig())
	result := calc.Calculate(0.0, contribution.CategoryVolunteer)
	assert.Equal(t, int64(25), result.NimoAmount)
}

func TestCalculatePrimaryMonotoneInConfidence(t *testing.T) {
	calc := NewCalculator(testConfig())
	prev := int64(-1)
	for conf := 0.0; conf <= 1.0; conf += 0.05 {
		result := calc.Calculate(conf, contribution.CategoryCoding)
		assert.GreaterOrEqual(t, result.NimoAmount, prev)
		prev = result.NimoAmount
	}
}

func TestCalculateMultiplierBelowThreshold(t *testing.T) {
	calc := NewCalculator(testConfig())

	// below the 0.8 threshold: clamp(0.5 - 0.2, 0.1, 1.5) = 0.3
	result := calc.Calculate(0.5, contribution.CategoryCoding)
	assert.InDelta(t, 0.3, result.Multiplier, 1e-9)
	assert.False(t, result.Eligible)
}

func TestCalculateMultiplierAboveThreshold(t *testing.T) {
	calc := NewCalculator(testConfig())

	// above threshold: clamp(0.9 + 0.2, 0.1, 1.5) = 1.1
	result := calc.Calculate(0.9, contribution.CategoryCoding)
	assert.InDelta(t, 1.1, result.Multiplier, 1e-9)
	assert.Equal(t, 0.8, result.ThresholdUsed)
}

func TestCalculateMultiplierClampFloor(t *testing.T) {
	calc := NewCalculator(testConfig())

	// clamp(0.05 - 0.2, 0.1, 1.5) = 0.1
	result := calc.Calculate(0.05, contribution.CategoryCoding)
	assert.InDelta(t, 0.1, result.Multiplier, 1e-9)
}

func TestCalculateEligibility(t *testing.T) {
	cfg := testConfig()
	cfg.ConversionRate = 1.0
	calc := NewCalculator(cfg)

	result := calc.Calculate(0.95, contribution.CategoryCoding)
	assert.True(t, result.Eligible)
	assert.Greater(t, result.FinalUSDC, cfg.MinPayout)
}

func TestCalculateDisabledPaymentsNeverEligible(t *testing.T) {
	cfg := testConfig()
	cfg.USDCPaymentsEnabled = false
	calc := NewCalculator(cfg)

	result := calc.Calculate(0.99, contribution.CategoryEntrepreneurship)
	assert.False(t, result.Eligible)
}

func TestCalculateBelowMinPayoutNotEligible(t *testing.T) {
	cfg := testConfig()
	cfg.ConversionRate = 0.001
	cfg.MinPayout = 10.0
	calc := NewCalculator(cfg)

	result := calc.Calculate(0.95, contribution.CategoryCoding)
	assert.Less(t, result.FinalUSDC, cfg.MinPayout)
	assert.False(t, result.Eligible)
}

func TestCalculateFromAmount(t *testing.T) {
	calc := NewCalculator(testConfig())

	result := calc.CalculateFromAmount(100, 0.9)
	assert.Equal(t, int64(100), result.NimoAmount)
	assert.InDelta(t, 1.0, result.BaseUSDC, 1e-9)
	assert.InDelta(t, 1.1, result.Multiplier, 1e-9)
	assert.InDelta(t, 1.1, result.FinalUSDC, 1e-9)
	assert.True(t, result.Eligible)
}

func TestCalculateClampsConfidence(t *testing.T) {
	calc := NewCalculator(testConfig())

	low := calc.Calculate(-0.5, contribution.CategoryCoding)
	high := calc.Calculate(1.5, contribution.CategoryCoding)

	assert.Equal(t, calc.Calculate(0, contribution.CategoryCoding).NimoAmount, low.NimoAmount)
	assert.Equal(t, calc.Calculate(1, contribution.CategoryCoding).NimoAmount, high.NimoAmount)
}
