package contribution

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidationError reports a bad or missing input field. Contributions that
// fail validation are rejected locally and never reach the decision backend.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid contribution: %s: %s", e.Field, e.Message)
}

// Validate checks a contribution at the engine boundary
func Validate(c *Contribution) error {
	if c == nil {
		return &ValidationError{Field: "contribution", Message: "missing"}
	}
	if c.ID == uuid.Nil {
		return &ValidationError{Field: "id", Message: "missing contribution id"}
	}
	if c.SubmitterID == uuid.Nil {
		return &ValidationError{Field: "submitter_id", Message: "missing submitter id"}
	}
	if strings.TrimSpace(c.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if len(c.Evidence) == 0 {
		return &ValidationError{Field: "evidence", Message: "at least one evidence item is required"}
	}
	for i, ev := range c.Evidence {
		if strings.TrimSpace(ev.URL) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("evidence[%d].url", i),
				Message: "evidence url is required",
			}
		}
	}
	switch c.Impact {
	case ImpactMinimal, ImpactModerate, ImpactSignificant, ImpactTransformative:
	case "":
		return &ValidationError{Field: "impact", Message: "impact level is required"}
	default:
		return &ValidationError{Field: "impact", Message: fmt.Sprintf("unknown impact level %q", c.Impact)}
	}
	return nil
}

// ValidateSignal checks the submitter snapshot ranges
func ValidateSignal(s *SubmitterSignal) error {
	if s == nil {
		return &ValidationError{Field: "submitter_signal", Message: "missing"}
	}
	if s.ReputationScore < 0 {
		return &ValidationError{Field: "reputation_score", Message: "must be non-negative"}
	}
	if s.PastContributions < 0 {
		return &ValidationError{Field: "past_contributions", Message: "must be non-negative"}
	}
	if s.VerificationRate < 0 || s.VerificationRate > 1 {
		return &ValidationError{Field: "verification_rate", Message: "must be within [0,1]"}
	}
	return nil
}
