package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nimo/identity-platform/verification-engine/internal/contribution"
)

func TestScoreEvidenceTable(t *testing.T) {
	cases := []struct {
		kind  contribution.EvidenceKind
		score float64
	}{
		{contribution.EvidenceGithubRepo, 0.9},
		{contribution.EvidenceVideo, 0.8},
		{contribution.EvidenceDocument, 0.7},
		{contribution.EvidenceWebsite, 0.6},
		{contribution.EvidenceImage, 0.5},
		{contribution.EvidenceOther, 0.4},
	}

	for _, tc := range cases {
		item := contribution.Evidence{Kind: tc.kind, URL: "https://example.com/x"}
		assert.Equal(t, tc.score, ScoreEvidence(item), "kind %s", tc.kind)
		// same input, same output
		assert.Equal(t, ScoreEvidence(item), ScoreEvidence(item))
	}
}

func TestScoreEvidenceUnknownKindDefaultsToOther(t *testing.T) {
	item := contribution.Evidence{Kind: "hologram", URL: "https://example.com/x"}
	assert.Equal(t, 0.4, ScoreEvidence(item))
}

func TestScoreEvidenceBounds(t *testing.T) {
	for kind := range map[contribution.EvidenceKind]bool{
		contribution.EvidenceGithubRepo: true,
		contribution.EvidenceVideo:      true,
		contribution.EvidenceDocument:   true,
		contribution.EvidenceWebsite:    true,
		contribution.EvidenceImage:      true,
		contribution.EvidenceOther:      true,
		"unknown":                       true,
	} {
		score := ScoreEvidence(contribution.Evidence{Kind: kind})
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestBestEvidencePicksHighestWeight(t *testing.T) {
	items := []contribution.Evidence{
		{Kind: contribution.EvidenceImage, URL: "https://example.com/a.png"},
		{Kind: contribution.EvidenceGithubRepo, URL: "https://github.com/u/repo"},
		{Kind: contribution.EvidenceDocument, URL: "https://example.com/doc.pdf"},
	}

	best, score, ok := BestEvidence(items)
	assert.True(t, ok)
	assert.Equal(t, contribution.EvidenceGithubRepo, best.Kind)
	assert.Equal(t, 0.9, score)
}

func TestBestEvidenceSkipsMalformedItems(t *testing.T) {
	items := []contribution.Evidence{
		{Kind: contribution.EvidenceGithubRepo, URL: "   "},
		{Kind: contribution.EvidenceWebsite, URL: "https://example.com"},
	}

	best, score, ok := BestEvidence(items)
	assert.True(t, ok)
	assert.Equal(t, contribution.EvidenceWebsite, best.Kind)
	assert.Equal(t, 0.6, score)
}

func TestBestEvidenceEmpty(t *testing.T) {
	_, _, ok := BestEvidence(nil)
	assert.False(t, ok)

	_, _, ok = BestEvidence([]contribution.Evidence{{Kind: contribution.EvidenceImage, URL: ""}})
	assert.False(t, ok)
}

func TestBestEvidenceTieKeepsFirst(t *testing.T) {
	items := []contribution.Evidence{
		{Kind: contribution.EvidenceDocument, URL: "https://example.com/first.pdf"},
		{Kind: contribution.EvidenceDocument, URL: "https://example.com/second.pdf"},
	}

	best, _, ok := BestEvidence(items)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/first.pdf", best.URL)
}
