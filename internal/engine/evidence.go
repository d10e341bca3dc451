package engine

import (
	"strings"

	"nimo/identity-platform/verification-engine/internal/contribution"
)

// evidenceWeights maps each evidence kind to its fixed score in [0,1]
var evidenceWeights = map[contribution.EvidenceKind]float64{
	contribution.EvidenceGithubRepo: 0.9,
	contribution.EvidenceVideo:      0.8,
	contribution.EvidenceDocument:   0.7,
	contribution.EvidenceWebsite:    0.6,
	contribution.EvidenceImage:      0.5,
	contribution.EvidenceOther:      0.4,
}

// ScoreEvidence scores a single evidence item by kind. Pure lookup; unknown
// kinds score as "other".
func ScoreEvidence(item contribution.Evidence) float64 {
	if w, ok := evidenceWeights[item.Kind]; ok {
		return w
	}
	return evidenceWeights[contribution.EvidenceOther]
}

// BestEvidence returns the highest-weight well-formed item and its score.
// When several items tie, the earliest one in the list wins, so the
// representative item is stable for a given contribution. Returns ok=false
// when no item has a usable URL.
func BestEvidence(items []contribution.Evidence) (best contribution.Evidence, score float64, ok bool) {
	for _, item := range items {
		if strings.TrimSpace(item.URL) == "" {
			continue
		}
		if s := ScoreEvidence(item); !ok || s > score {
			best, score, ok = item, s, true
		}
	}
	return best, score, ok
}
