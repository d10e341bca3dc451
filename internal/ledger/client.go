package ledger

import (
	"context"

	"github.com/google/uuid"
)

// VerifyRequest records one verified contribution on the ledger
type VerifyRequest struct {
	ContributionID uuid.UUID `json:"contribution_id"`
	SubmitterRef   string    `json:"submitter_ref"`
	TokenAmount    int64     `json:"token_amount"`
	Proof          string    `json:"proof"`
}

// MintRequest mints a secondary-currency reward to a recipient. Amount is in
// integer cents; implementations convert to asset units on the wire.
type MintRequest struct {
	ToRef  string `json:"to_ref"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
	Proof  string `json:"proof"`
}

// SubmitResult is the chain-side outcome of a submission
type SubmitResult struct {
	ExternalRef string
	Confirmed   bool
}

// Client abstracts the external ledger. Chain specifics (address formats,
// fees, gas units) stay behind this interface. Implementations return
// *TransientError for retryable failures and *FatalError for rejections.
type Client interface {
	SubmitVerification(ctx context.Context, req VerifyRequest) (*SubmitResult, error)
	SubmitMint(ctx context.Context, req MintRequest) (*SubmitResult, error)

	// SubmitBatch attempts one combined submission for throughput; callers
	// fall back to individual submissions when it fails.
	SubmitBatch(ctx context.Context, reqs []VerifyRequest) ([]SubmitResult, error)

	// TransactionStatus resolves an external reference to its current status
	TransactionStatus(ctx context.Context, externalRef string) (TransactionStatus, error)
}
