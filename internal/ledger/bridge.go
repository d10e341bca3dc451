package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// BridgeConfig controls retry behavior and per-call timeouts
type BridgeConfig struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
	CallTimeout    time.Duration `json:"call_timeout"`
}

// DefaultBridgeConfig returns the production retry policy
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		CallTimeout:    15 * time.Second,
	}
}

// Bridge records verified decisions on the external ledger with idempotency,
// bounded retries, and pending/confirmed/failed tracking.
//
// At-most-once reward distribution hangs off the reservation in
// RecordVerification: the (submitter, contribution) key is atomically
// reserved in the key store before any chain call, so of two concurrent
// workers only the reservation winner submits. A failed submission releases
// the reservation so the pair can be retried. Reward mints are only issued by
// callers immediately after a fresh (non-duplicate) verification record, so
// they inherit the same guarantee.
type Bridge struct {
	client Client
	repo   Repository
	keys   KeyStore
	logger *zap.Logger
	cfg    BridgeConfig
}

// NewBridge creates a ledger bridge
func NewBridge(client Client, repo Repository, keys KeyStore, logger *zap.Logger, cfg BridgeConfig) *Bridge {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Bridge{
		client: client,
		repo:   repo,
		keys:   keys,
		logger: logger,
		cfg:    cfg,
	}
}

// ErrAlreadyProcessed wraps the existing transaction when a reward key has
// already been applied. Not a failure: callers short-circuit to the prior
// result.
var ErrAlreadyProcessed = errors.New("reward already processed")

// RecordVerification records a verified contribution and its token award on
// the ledger. Returns the existing transaction without resubmitting when the
// (submitter, contribution) pair was already processed or is being processed
// by a concurrent worker.
func (b *Bridge) RecordVerification(ctx context.Context, contributionID uuid.UUID, submitterRef string, tokenAmount int64, proof string) (*Transaction, error) {
	key := ProcessedRewardKey{SubmitterRef: submitterRef, ContributionID: contributionID}

	if existingID, ok, err := b.keys.Get(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to check processed keys: %w", err)
	} else if ok {
		tx, getErr := b.processedLookup(ctx, existingID)
		if getErr != nil {
			return nil, getErr
		}
		return tx, ErrAlreadyProcessed
	}

	req := VerifyRequest{
		ContributionID: contributionID,
		SubmitterRef:   submitterRef,
		TokenAmount:    tokenAmount,
		Proof:          proof,
	}
	tx := &Transaction{
		ID:             uuid.New(),
		Kind:           KindVerify,
		ContributionID: &contributionID,
		SubmitterRef:   submitterRef,
		Amount:         tokenAmount,
		Proof:          proof,
		Status:         StatusPending,
		Metadata:       requestMetadata(req),
	}
	if err := b.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	// the reservation is the concurrency gate: only the worker that wins it
	// may touch the chain for this pair
	if inserted, err := b.keys.Put(ctx, key, tx.ID.String()); err != nil {
		return b.failTransaction(ctx, tx, fmt.Errorf("failed to reserve reward key: %w", err))
	} else if !inserted {
		if markErr := b.repo.MarkFailed(ctx, tx.ID, "superseded by concurrent recording"); markErr != nil {
			b.logger.Error("Failed to mark superseded transaction",
				zap.String("transaction_id", tx.ID.String()), zap.Error(markErr))
		}
		existingID, ok, getErr := b.keys.Get(ctx, key)
		if getErr != nil || !ok {
			return nil, &TransientError{Err: errors.New("reward key reservation contended")}
		}
		prior, lookupErr := b.processedLookup(ctx, existingID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return prior, ErrAlreadyProcessed
	}

	result, err := b.submitWithRetry(ctx, func(callCtx context.Context) (*SubmitResult, error) {
		return b.client.SubmitVerification(callCtx, req)
	})
	if err != nil {
		// release the reservation so a later retry can resubmit
		b.releaseKey(ctx, key)
		return b.failTransaction(ctx, tx, err)
	}

	b.confirmTransaction(ctx, tx, result)
	return tx, nil
}

// MintReward mints a secondary-currency reward to the recipient. Amount is in
// integer cents of the secondary asset.
func (b *Bridge) MintReward(ctx context.Context, toRef string, amount int64, reason, proof string) (*Transaction, error) {
	req := MintRequest{
		ToRef:  toRef,
		Amount: amount,
		Reason: reason,
		Proof:  proof,
	}
	tx := &Transaction{
		ID:           uuid.New(),
		Kind:         KindMint,
		SubmitterRef: toRef,
		Amount:       amount,
		Reason:       reason,
		Proof:        proof,
		Status:       StatusPending,
		Metadata:     requestMetadata(req),
	}
	if err := b.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	result, err := b.submitWithRetry(ctx, func(callCtx context.Context) (*SubmitResult, error) {
		return b.client.SubmitMint(callCtx, req)
	})
	if err != nil {
		return b.failTransaction(ctx, tx, err)
	}

	b.confirmTransaction(ctx, tx, result)
	return tx, nil
}

// batchItem pairs one batch input with its reserved transaction
type batchItem struct {
	idx int
	key ProcessedRewardKey
	req VerifyRequest
	tx  *Transaction
}

// BatchVerify records a batch of verifications. Every key is reserved before
// anything reaches the chain; one combined submission is attempted for the
// reserved items, and on failure each is submitted individually so one bad
// item does not block the rest. Results preserve input order.
func (b *Bridge) BatchVerify(ctx context.Context, reqs []VerifyRequest) ([]*Transaction, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	txs := make([]*Transaction, len(reqs))
	var items []batchItem
	for i, req := range reqs {
		key := ProcessedRewardKey{SubmitterRef: req.SubmitterRef, ContributionID: req.ContributionID}
		if existingID, ok, err := b.keys.Get(ctx, key); err == nil && ok {
			if prior, getErr := b.processedLookup(ctx, existingID); getErr == nil {
				txs[i] = prior
				continue
			}
		}

		contributionID := req.ContributionID
		tx := &Transaction{
			ID:             uuid.New(),
			Kind:           KindVerify,
			ContributionID: &contributionID,
			SubmitterRef:   req.SubmitterRef,
			Amount:         req.TokenAmount,
			Proof:          req.Proof,
			Status:         StatusPending,
			Metadata:       requestMetadata(req),
		}
		if err := b.repo.Create(ctx, tx); err != nil {
			// this item alone fails; the rest of the batch continues
			b.logger.Error("Batch item failed",
				zap.String("contribution_id", req.ContributionID.String()),
				zap.Error(err))
			msg := err.Error()
			tx.Status = StatusFailed
			tx.ErrorMessage = &msg
			txs[i] = tx
			continue
		}

		if inserted, putErr := b.keys.Put(ctx, key, tx.ID.String()); putErr != nil {
			failed, _ := b.failTransaction(ctx, tx, fmt.Errorf("failed to reserve reward key: %w", putErr))
			txs[i] = failed
			continue
		} else if !inserted {
			// a concurrent worker holds the reservation; its transaction is
			// authoritative
			if markErr := b.repo.MarkFailed(ctx, tx.ID, "superseded by concurrent recording"); markErr != nil {
				b.logger.Error("Failed to mark superseded transaction",
					zap.String("transaction_id", tx.ID.String()), zap.Error(markErr))
			}
			tx.Status = StatusFailed
			txs[i] = tx
			if existingID, ok, _ := b.keys.Get(ctx, key); ok {
				if prior, getErr := b.processedLookup(ctx, existingID); getErr == nil {
					txs[i] = prior
				}
			}
			continue
		}

		items = append(items, batchItem{idx: i, key: key, req: req, tx: tx})
	}
	if len(items) == 0 {
		return txs, nil
	}

	pending := make([]VerifyRequest, len(items))
	for i, it := range items {
		pending[i] = it.req
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	results, err := b.client.SubmitBatch(callCtx, pending)
	cancel()

	if err == nil && len(results) == len(items) {
		for i, it := range items {
			b.confirmTransaction(ctx, it.tx, &results[i])
			txs[it.idx] = it.tx
		}
		return txs, nil
	}

	if err != nil {
		b.logger.Warn("Combined batch submission failed, falling back to individual calls",
			zap.Int("items", len(items)), zap.Error(err))
	}

	for _, it := range items {
		req := it.req
		result, itemErr := b.submitWithRetry(ctx, func(callCtx context.Context) (*SubmitResult, error) {
			return b.client.SubmitVerification(callCtx, req)
		})
		if itemErr != nil {
			b.releaseKey(ctx, it.key)
			failed, _ := b.failTransaction(ctx, it.tx, itemErr)
			b.logger.Error("Batch item failed",
				zap.String("contribution_id", req.ContributionID.String()),
				zap.Error(itemErr))
			txs[it.idx] = failed
			continue
		}
		b.confirmTransaction(ctx, it.tx, result)
		txs[it.idx] = it.tx
	}
	return txs, nil
}

// GetStatus resolves a transaction reference to its current status. Local
// state is consulted first; unknown references fall through to the chain.
func (b *Bridge) GetStatus(ctx context.Context, externalRef string) (TransactionStatus, error) {
	if tx, err := b.repo.GetByExternalRef(ctx, externalRef); err == nil {
		return tx.Status, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()
	return b.client.TransactionStatus(callCtx, externalRef)
}

// submitWithRetry runs one ledger call with bounded exponential backoff.
// Only transient errors are retried; fatal errors and context cancellation
// surface immediately.
func (b *Bridge) submitWithRetry(ctx context.Context, call func(context.Context) (*SubmitResult, error)) (*SubmitResult, error) {
	backoff := b.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
		result, err := call(callCtx)
		cancel()

		if err == nil {
			return result, nil
		}

		// a timed-out call is a transient failure, not a rejection
		if errors.Is(err, context.DeadlineExceeded) {
			err = &TransientError{Err: err}
		}

		if IsFatal(err) {
			return nil, err
		}
		if !IsTransient(err) {
			return nil, err
		}

		lastErr = err
		if attempt < b.cfg.MaxAttempts {
			b.logger.Warn("Transient ledger error, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, &TransientError{Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > b.cfg.MaxBackoff {
				backoff = b.cfg.MaxBackoff
			}
		}
	}

	return nil, fmt.Errorf("ledger submission failed after %d attempts: %w", b.cfg.MaxAttempts, lastErr)
}

// processedLookup resolves a processed-key value to its transaction
func (b *Bridge) processedLookup(ctx context.Context, existingID string) (*Transaction, error) {
	txID, err := uuid.Parse(existingID)
	if err != nil {
		return nil, fmt.Errorf("corrupt processed key value %q: %w", existingID, err)
	}
	return b.repo.GetByID(ctx, txID)
}

// releaseKey drops a reservation whose submission failed so the pair stays
// retryable
func (b *Bridge) releaseKey(ctx context.Context, key ProcessedRewardKey) {
	if err := b.keys.Delete(ctx, key); err != nil {
		b.logger.Error("Failed to release reward key",
			zap.String("key", key.String()), zap.Error(err))
	}
}

// requestMetadata serializes the chain request for the audit trail
func requestMetadata(req interface{}) datatypes.JSON {
	data, err := json.Marshal(req)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}

// failTransaction marks the transaction failed and passes the original error
// through. The transaction record stays available to callers so "verified
// but not recorded" is distinguishable from "not verified".
func (b *Bridge) failTransaction(ctx context.Context, tx *Transaction, cause error) (*Transaction, error) {
	msg := cause.Error()
	if markErr := b.repo.MarkFailed(ctx, tx.ID, msg); markErr != nil {
		b.logger.Error("Failed to mark transaction failed",
			zap.String("transaction_id", tx.ID.String()), zap.Error(markErr))
	}
	tx.Status = StatusFailed
	tx.ErrorMessage = &msg
	return tx, cause
}

func (b *Bridge) confirmTransaction(ctx context.Context, tx *Transaction, result *SubmitResult) {
	tx.ExternalRef = &result.ExternalRef
	if !result.Confirmed {
		// stays pending; persist the ref so the confirmation worker can
		// poll the chain for it
		if err := b.repo.SetExternalRef(ctx, tx.ID, result.ExternalRef); err != nil {
			b.logger.Error("Failed to store external reference",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("external_ref", result.ExternalRef),
				zap.Error(err))
		}
		return
	}
	if err := b.repo.MarkConfirmed(ctx, tx.ID, result.ExternalRef); err != nil {
		b.logger.Error("Failed to mark transaction confirmed",
			zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		return
	}
	now := time.Now()
	tx.Status = StatusConfirmed
	tx.ConfirmedAt = &now
}
