package contribution

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies the kind of real-world work a contribution claims
type Category string

const (
	CategoryCoding           Category = "coding"
	CategoryEducation        Category = "education"
	CategoryVolunteer        Category = "volunteer"
	CategoryActivism         Category = "activism"
	CategoryLeadership       Category = "leadership"
	CategoryEntrepreneurship Category = "entrepreneurship"
	CategoryEnvironmental    Category = "environmental"
	CategoryCommunity        Category = "community"
	CategoryOther            Category = "other"
)

// ParseCategory normalizes a caller-supplied category string.
// The category is caller-trusted input; the engine never re-derives it
// from the contribution text. Unknown values map to CategoryOther.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryCoding, CategoryEducation, CategoryVolunteer, CategoryActivism,
		CategoryLeadership, CategoryEntrepreneurship, CategoryEnvironmental,
		CategoryCommunity, CategoryOther:
		return Category(s)
	default:
		return CategoryOther
	}
}

// ImpactLevel represents the claimed magnitude of a contribution
type ImpactLevel string

const (
	ImpactMinimal        ImpactLevel = "minimal"
	ImpactModerate       ImpactLevel = "moderate"
	ImpactSignificant    ImpactLevel = "significant"
	ImpactTransformative ImpactLevel = "transformative"
)

// EvidenceKind tags a single piece of supporting evidence
type EvidenceKind string

const (
	EvidenceGithubRepo EvidenceKind = "github-repo"
	EvidenceDocument   EvidenceKind = "document"
	EvidenceWebsite    EvidenceKind = "website"
	EvidenceImage      EvidenceKind = "image"
	EvidenceVideo      EvidenceKind = "video"
	EvidenceOther      EvidenceKind = "other"
)

// ParseEvidenceKind normalizes an evidence kind; unknown kinds score as "other"
func ParseEvidenceKind(s string) EvidenceKind {
	switch EvidenceKind(s) {
	case EvidenceGithubRepo, EvidenceDocument, EvidenceWebsite,
		EvidenceImage, EvidenceVideo, EvidenceOther:
		return EvidenceKind(s)
	default:
		return EvidenceOther
	}
}

// Evidence is one item in the ordered evidence list attached to a contribution.
// Read-only input to the engine.
type Evidence struct {
	Kind        EvidenceKind `json:"kind"`
	URL         string       `json:"url"`
	Description string       `json:"description,omitempty"`
	CapturedAt  *time.Time   `json:"captured_at,omitempty"`
	Author      string       `json:"author,omitempty"`
}

// Contribution is a claimed unit of real-world work submitted for
// verification and reward. Immutable once a decision is recorded.
type Contribution struct {
	ID          uuid.UUID   `json:"id"`
	SubmitterID uuid.UUID   `json:"submitter_id"`
	Category    Category    `json:"category"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Impact      ImpactLevel `json:"impact"`
	Evidence    []Evidence  `json:"evidence"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SubmitterSignal is a snapshot of the submitter's history supplied by the
// caller. The engine never mutates caller state.
type SubmitterSignal struct {
	ReputationScore   float64     `json:"reputation_score"`   // 0-100, may exceed 100
	PastContributions int         `json:"past_contributions"`
	VerificationRate  float64     `json:"verification_rate"`  // 0-1
	RecentSubmissions []time.Time `json:"recent_submissions"` // for cadence analysis
}

// PriorContribution is a lightweight view of a past contribution by the same
// submitter, used for duplicate detection
type PriorContribution struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	EvidenceURLs []string  `json:"evidence_urls"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
