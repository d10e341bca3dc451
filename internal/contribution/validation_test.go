package contribution

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validContribution() *Contribution {
	return &Contribution{
		ID:          uuid.New(),
		SubmitterID: uuid.New(),
		Category:    CategoryCoding,
		Title:       "Built a payments SDK",
		Impact:      ImpactModerate,
		Evidence: []Evidence{
			{Kind: EvidenceGithubRepo, URL: "https://github.com/u/payments-sdk"},
		},
		CreatedAt: time.Now(),
	}
}

func TestValidateAccepts(t *testing.T) {
	assert.NoError(t, Validate(validContribution()))
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Contribution)
		field  string
	}{
		{"nil id", func(c *Contribution) { c.ID = uuid.Nil }, "id"},
		{"nil submitter", func(c *Contribution) { c.SubmitterID = uuid.Nil }, "submitter_id"},
		{"blank title", func(c *Contribution) { c.Title = "   " }, "title"},
		{"no evidence", func(c *Contribution) { c.Evidence = nil }, "evidence"},
		{"blank evidence url", func(c *Contribution) { c.Evidence[0].URL = "" }, "evidence[0].url"},
		{"missing impact", func(c *Contribution) { c.Impact = "" }, "impact"},
		{"unknown impact", func(c *Contribution) { c.Impact = "cosmic" }, "impact"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validContribution()
			tc.mutate(c)

			err := Validate(c)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestValidateNilContribution(t *testing.T) {
	err := Validate(nil)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestValidateSignal(t *testing.T) {
	assert.NoError(t, ValidateSignal(&SubmitterSignal{
		ReputationScore:   85,
		PastContributions: 12,
		VerificationRate:  0.75,
	}))

	var vErr *ValidationError

	err := ValidateSignal(&SubmitterSignal{ReputationScore: -1})
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reputation_score", vErr.Field)

	err = ValidateSignal(&SubmitterSignal{PastContributions: -1})
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "past_contributions", vErr.Field)

	err = ValidateSignal(&SubmitterSignal{VerificationRate: 1.5})
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "verification_rate", vErr.Field)

	err = ValidateSignal(nil)
	assert.ErrorAs(t, err, &vErr)
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryCoding, ParseCategory("coding"))
	assert.Equal(t, CategoryEntrepreneurship, ParseCategory("entrepreneurship"))
	assert.Equal(t, CategoryOther, ParseCategory("interpretive-dance"))
	assert.Equal(t, CategoryOther, ParseCategory(""))
}

func TestParseEvidenceKind(t *testing.T) {
	assert.Equal(t, EvidenceGithubRepo, ParseEvidenceKind("github-repo"))
	assert.Equal(t, EvidenceVideo, ParseEvidenceKind("video"))
	assert.Equal(t, EvidenceOther, ParseEvidenceKind("hologram"))
	assert.Equal(t, EvidenceOther, ParseEvidenceKind(""))
}
