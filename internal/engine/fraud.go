package engine

import (
	"fmt"
	"strings"
	"time"

	"nimo/identity-platform/verification-engine/internal/contribution"
)

const (
	// duplicateSimilarityThreshold flags a resubmission of prior work
	duplicateSimilarityThreshold = 0.8

	// suspiciousCadence flags submitters averaging less than one hour
	// between recent submissions
	suspiciousCadence = time.Hour
)

// FraudAssessment is the outcome of the fraud checks for one contribution
type FraudAssessment struct {
	IsFraud    bool    `json:"is_fraud"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

// FraudDetector flags duplicate, high-cadence, or internally inconsistent
// submissions. Checks combine with logical OR: any positive means fraud.
type FraudDetector struct{}

// NewFraudDetector creates a fraud detector
func NewFraudDetector() *FraudDetector {
	return &FraudDetector{}
}

// Assess runs all fraud checks against a contribution and the submitter's
// history snapshot. Prior contributions must belong to the same submitter.
func (d *FraudDetector) Assess(c *contribution.Contribution, signal *contribution.SubmitterSignal, priors []contribution.PriorContribution) FraudAssessment {
	for _, prior := range priors {
		sim := similarity(c, &prior)
		if sim >= duplicateSimilarityThreshold {
			return FraudAssessment{
				IsFraud:    true,
				Reason:     fmt.Sprintf("duplicate of prior contribution %s (similarity %.2f)", prior.ID, sim),
				Confidence: sim,
			}
		}
	}

	if signal != nil {
		if ok, avg := cadenceSuspicious(signal.RecentSubmissions); ok {
			return FraudAssessment{
				IsFraud:    true,
				Reason:     fmt.Sprintf("suspicious submission cadence: average interval %s", avg.Round(time.Second)),
				Confidence: 0.85,
			}
		}
	}

	if reason := evidenceInconsistent(c); reason != "" {
		return FraudAssessment{
			IsFraud:    true,
			Reason:     reason,
			Confidence: 0.75,
		}
	}

	return FraudAssessment{IsFraud: false, Confidence: 0.9}
}

// similarity scores overlap between a new contribution and a prior one.
// Title token overlap and shared evidence URLs are each sufficient signals;
// the stronger one wins.
func similarity(c *contribution.Contribution, prior *contribution.PriorContribution) float64 {
	titleSim := jaccard(tokens(c.Title), tokens(prior.Title))

	urlSim := 0.0
	if len(prior.EvidenceURLs) > 0 {
		priorURLs := make(map[string]bool, len(prior.EvidenceURLs))
		for _, u := range prior.EvidenceURLs {
			priorURLs[normalizeURL(u)] = true
		}
		for _, ev := range c.Evidence {
			if priorURLs[normalizeURL(ev.URL)] {
				urlSim = 1.0
				break
			}
		}
	}

	if urlSim > titleSim {
		return urlSim
	}
	return titleSim
}

func tokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?\"'()")
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimSuffix(u, "/")
}

// cadenceSuspicious reports whether the average interval between recent
// submissions falls under the one-hour floor
func cadenceSuspicious(recent []time.Time) (bool, time.Duration) {
	if len(recent) < 2 {
		return false, 0
	}
	sorted := make([]time.Time, len(recent))
	copy(sorted, recent)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Before(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	total := sorted[len(sorted)-1].Sub(sorted[0])
	avg := total / time.Duration(len(sorted)-1)
	return avg < suspiciousCadence, avg
}

// evidenceInconsistent checks evidence timestamps against the contribution.
// Evidence captured long before the claimed work, or stamped in the future,
// conflicts with the claim.
func evidenceInconsistent(c *contribution.Contribution) string {
	for i, ev := range c.Evidence {
		if ev.CapturedAt != nil && !c.CreatedAt.IsZero() {
			// evidence predating the contribution by more than a year
			// cannot document the claimed work
			if c.CreatedAt.Sub(*ev.CapturedAt) > 365*24*time.Hour {
				return fmt.Sprintf("evidence[%d] captured %s, long before the claimed work", i, ev.CapturedAt.Format(time.RFC3339))
			}
			if ev.CapturedAt.After(time.Now().Add(24 * time.Hour)) {
				return fmt.Sprintf("evidence[%d] carries a future capture timestamp", i)
			}
		}
	}
	return ""
}
