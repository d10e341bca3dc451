package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"nimo/identity-platform/verification-engine/internal/contribution"
	"nimo/identity-platform/verification-engine/internal/ledger"
	"nimo/identity-platform/verification-engine/internal/rewards"
)

// stubLedgerClient scripts ledger responses and counts calls
type stubLedgerClient struct {
	mu          sync.Mutex
	verifyCalls int
	mintCalls   int
	batchCalls  int

	verifyErr error
	mintErr   error
}

func (c *stubLedgerClient) SubmitVerification(ctx context.Context, req ledger.VerifyRequest) (*ledger.SubmitResult, error) {
	c.mu.Lock()
	c.verifyCalls++
	c.mu.Unlock()
	if c.verifyErr != nil {
		return nil, c.verifyErr
	}
	return &ledger.SubmitResult{ExternalRef: "verify-" + req.ContributionID.String(), Confirmed: true}, nil
}

func (c *stubLedgerClient) SubmitMint(ctx context.Context, req ledger.MintRequest) (*ledger.SubmitResult, error) {
	c.mu.Lock()
	c.mintCalls++
	c.mu.Unlock()
	if c.mintErr != nil {
		return nil, c.mintErr
	}
	return &ledger.SubmitResult{ExternalRef: "mint-" + req.ToRef, Confirmed: true}, nil
}

func (c *stubLedgerClient) SubmitBatch(ctx context.Context, reqs []ledger.VerifyRequest) ([]ledger.SubmitResult, error) {
	c.mu.Lock()
	c.batchCalls++
	c.mu.Unlock()
	results := make([]ledger.SubmitResult, len(reqs))
	for i, req := range reqs {
		results[i] = ledger.SubmitResult{ExternalRef: "batch-" + req.ContributionID.String(), Confirmed: true}
	}
	return results, nil
}

func (c *stubLedgerClient) TransactionStatus(ctx context.Context, externalRef string) (ledger.TransactionStatus, error) {
	return ledger.StatusConfirmed, nil
}

func (c *stubLedgerClient) calls() (verify, mint int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyCalls, c.mintCalls
}

// fakeRepo keeps transactions in a map
type fakeRepo struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*ledger.Transaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{txs: make(map[uuid.UUID]*ledger.Transaction)}
}

func (r *fakeRepo) Create(ctx context.Context, tx *ledger.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *tx
	r.txs[tx.ID] = &copied
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, fmt.Errorf("not found: %s", id)
	}
	copied := *tx
	return &copied, nil
}

func (r *fakeRepo) GetByExternalRef(ctx context.Context, ref string) (*ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.ExternalRef != nil && *tx.ExternalRef == ref {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("not found: %s", ref)
}

func (r *fakeRepo) SetExternalRef(ctx context.Context, id uuid.UUID, externalRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.Status != ledger.StatusPending {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	tx.ExternalRef = &externalRef
	return nil
}

func (r *fakeRepo) MarkConfirmed(ctx context.Context, id uuid.UUID, externalRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.Status != ledger.StatusPending {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	now := time.Now()
	tx.Status = ledger.StatusConfirmed
	tx.ExternalRef = &externalRef
	tx.ConfirmedAt = &now
	return nil
}

func (r *fakeRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.Status != ledger.StatusPending {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	tx.Status = ledger.StatusFailed
	tx.ErrorMessage = &reason
	return nil
}

func (r *fakeRepo) ListPending(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	return nil, nil
}

func newTestService(backend Backend, client ledger.Client) *Service {
	bridge := ledger.NewBridge(client, newFakeRepo(), ledger.NewMemoryKeyStore(), zap.NewNop(), ledger.BridgeConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		CallTimeout:    time.Second,
	})
	calc := rewards.NewCalculator(rewards.DefaultConfig())
	return NewService(backend, NewFraudDetector(), calc, bridge, zap.NewNop(), ServiceConfig{BackendTimeout: time.Second})
}

func verifyRequest() *VerifyRequest {
	input := validationInput()
	return &VerifyRequest{
		Contribution: input.Contribution,
		Signal:       input.Signal,
		SubmitterRef: "GSUBMITTER",
	}
}

func TestVerifyHappyPath(t *testing.T) {
	backend := &stubBackend{name: "metta", result: &ValidationResult{Verified: true, Confidence: 0.9, Explanation: "strong evidence"}}
	client := &stubLedgerClient{}
	svc := newTestService(backend, client)

	result, err := svc.Verify(context.Background(), verifyRequest())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeVerified, result.Decision.Outcome)
	assert.Equal(t, 0.9, result.Decision.Confidence)
	assert.NotEmpty(t, result.Decision.ProofHash)
	assert.True(t, result.Recorded)

	assert.NotNil(t, result.Reward)
	assert.Equal(t, int64(71), result.Reward.NimoAmount)
	assert.True(t, result.Reward.Eligible)

	assert.NotNil(t, result.VerifyTx)
	assert.Equal(t, ledger.StatusConfirmed, result.VerifyTx.Status)
	assert.NotNil(t, result.MintTx)
	assert.Equal(t, ledger.KindMint, result.MintTx.Kind)

	verify, mint := client.calls()
	assert.Equal(t, 1, verify)
	assert.Equal(t, 1, mint)
}

func TestVerifyRejectedSkipsLedger(t *testing.T) {
	backend := &stubBackend{name: "metta", result: &ValidationResult{Verified: false, Confidence: 0.3, Explanation: "weak evidence"}}
	client := &stubLedgerClient{}
	svc := newTestService(backend, client)

	result, err := svc.Verify(context.Background(), verifyRequest())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Decision.Outcome)
	assert.Nil(t, result.Reward)
	assert.Nil(t, result.VerifyTx)
	assert.False(t, result.Recorded)

	verify, mint := client.calls()
	assert.Equal(t, 0, verify)
	assert.Equal(t, 0, mint)
}

func TestVerifyFraudShortCircuits(t *testing.T) {
	backend := &stubBackend{name: "metta", result: &ValidationResult{Verified: true, Confidence: 0.9}}
	client := &stubLedgerClient{}
	svc := newTestService(backend, client)

	req := verifyRequest()
	req.Priors = []contribution.PriorContribution{
		{ID: uuid.New(), Title: req.Contribution.Title},
	}

	result, err := svc.Verify(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeFraudFlagged, result.Decision.Outcome)
	assert.True(t, result.Fraud.IsFraud)
	assert.Nil(t, result.Reward)

	// flagged contributions never reach the backend or the ledger
	assert.Equal(t, 0, backend.callCount())
	verify, mint := client.calls()
	assert.Equal(t, 0, verify)
	assert.Equal(t, 0, mint)
}

func TestVerifyInvalidContribution(t *testing.T) {
	backend := &stubBackend{name: "metta", result: &ValidationResult{}}
	svc := newTestService(backend, &stubLedgerClient{})

	req := verifyRequest()
	req.Contribution.Title = ""

	_, err := svc.Verify(context.Background(), req)
	var vErr *contribution.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "title", vErr.Field)
	assert.Equal(t, 0, backend.callCount())
}

func TestVerifyBackendUnavailableSurfaces(t *testing.T) {
	backend := &stubBackend{name: "metta", err: fmt.Errorf("%w: process crashed", ErrBackendUnavailable)}
	client := &stubLedgerClient{}
	svc := newTestService(backend, client)

	result, err := svc.Verify(context.Background(), verifyRequest())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.NotNil(t, result)
	assert.Nil(t, result.Decision)
	assert.NotEmpty(t, result.Error)

	verify, _ := client.calls()
	assert.Equal(t, 0, verify)
}

func TestVerifyDuplicateRewardNotMintedTwice(t *testing.T) {
	backend := &stubBackend{name: "metta", result: &ValidationResult{Verified: true, Confidence: 0.9}}
	client := &stubLedgerClient{}
	svc := newTestService(backend, client)

	req := verifyRequest()

	first, err := svc.Verify(context.Background(), req)
	assert.NoError(t, err)
	assert.True(t, first.Recorded)

	second, err := svc.Verify(context.Background(), req)
	assert.NoError(t, err)
	assert.True(t, second.Recorded)
	assert.Equal(t, first.VerifyTx.ID, second.VerifyTx.ID)
	assert.Nil(t, second.MintTx)

	verify, mint := client.calls()
	assert.Equal(t, 1, verify)
	assert.Equal(t, 1, mint)
}

func TestVerifyRecordingFailureKeepsDecision(t *testing.T) {
	backend := &stubBackend{name: "metta", result: &ValidationResult{Verified: true, Confidence: 0.9}}
	client := &stubLedgerClient{verifyErr: &ledger.FatalError{Err: errors.New("account missing")}}
	svc := newTestService(backend, client)

	result, err := svc.Verify(context.Background(), verifyRequest())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeVerified, result.Decision.Outcome)
	assert.False(t, result.Recorded)
	assert.NotNil(t, result.VerifyTx)
	assert.Equal(t, ledger.StatusFailed, result.VerifyTx.Status)
	assert.Nil(t, result.MintTx)
}

func TestVerifyIneligibleRewardSkipsMint(t *testing.T) {
	// verified but below the payout confidence threshold
	backend := &stubBackend{name: "metta", result: &ValidationResult{Verified: true, Confidence: 0.7}}
	client := &stubLedgerClient{}
	svc := newTestService(backend, client)

	result, err := svc.Verify(context.Background(), verifyRequest())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeVerified, result.Decision.Outcome)
	assert.NotNil(t, result.Reward)
	assert.False(t, result.Reward.Eligible)
	assert.Nil(t, result.MintTx)

	verify, mint := client.calls()
	assert.Equal(t, 1, verify)
	assert.Equal(t, 0, mint)
}

func TestProofHashStableAcrossTime(t *testing.T) {
	id := uuid.New()
	a := &Decision{ContributionID: id, Outcome: OutcomeVerified, Confidence: 0.9, Explanation: "x", Backend: "metta", DecidedAt: time.Now()}
	b := &Decision{ContributionID: id, Outcome: OutcomeVerified, Confidence: 0.9, Explanation: "x", Backend: "metta", DecidedAt: time.Now().Add(time.Hour)}

	assert.Equal(t, proofHash(a), proofHash(b))

	c := &Decision{ContributionID: id, Outcome: OutcomeRejected, Confidence: 0.9, Explanation: "x", Backend: "metta"}
	assert.NotEqual(t, proofHash(a), proofHash(c))
}

func TestPreviewReward(t *testing.T) {
	svc := newTestService(&stubBackend{name: "metta"}, &stubLedgerClient{})

	calc := svc.PreviewReward(0.95, contribution.CategoryCoding)
	assert.Equal(t, int64(73), calc.NimoAmount)

	fromAmount := svc.PreviewRewardFromAmount(100, 0.9)
	assert.Equal(t, int64(100), fromAmount.NimoAmount)
	assert.InDelta(t, 1.1, fromAmount.Multiplier, 1e-9)
}
