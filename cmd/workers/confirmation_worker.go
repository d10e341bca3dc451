package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"nimo/identity-platform/verification-engine/internal/config"
	"nimo/identity-platform/verification-engine/internal/ledger"
)

// ConfirmationWorker promotes pending ledger transactions to confirmed or
// failed by polling the chain
type ConfirmationWorker struct {
	db     *sqlx.DB
	client ledger.Client
	logger *zap.Logger
	config ConfirmationWorkerConfig
	done   chan struct{}
}

// ConfirmationWorkerConfig configuration for the confirmation worker
type ConfirmationWorkerConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxConcurrent int
	MinAge        time.Duration
	StatusTimeout time.Duration
}

// DefaultConfirmationWorkerConfig returns default configuration
func DefaultConfirmationWorkerConfig() ConfirmationWorkerConfig {
	return ConfirmationWorkerConfig{
		PollInterval:  30 * time.Second,
		BatchSize:     20,
		MaxConcurrent: 5,
		MinAge:        10 * time.Second,
		StatusTimeout: 15 * time.Second,
	}
}

// NewConfirmationWorker creates a new confirmation worker
func NewConfirmationWorker(db *sqlx.DB, client ledger.Client, logger *zap.Logger, config ConfirmationWorkerConfig) *ConfirmationWorker {
	return &ConfirmationWorker{
		db:     db,
		client: client,
		logger: logger,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start starts the confirmation worker
func (w *ConfirmationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting confirmation worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.resolvePendingTransactions(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Confirmation worker shutting down")
			return nil
		case <-w.done:
			w.logger.Info("Confirmation worker stopped")
			return nil
		case <-ticker.C:
			w.resolvePendingTransactions(ctx)
		}
	}
}

// Stop stops the confirmation worker
func (w *ConfirmationWorker) Stop() {
	close(w.done)
}

// PendingTransaction is one unresolved ledger submission
type PendingTransaction struct {
	ID          string    `db:"id"`
	Kind        string    `db:"kind"`
	ExternalRef *string   `db:"external_ref"`
	CreatedAt   time.Time `db:"created_at"`
}

// resolvePendingTransactions polls the chain for each pending transaction
func (w *ConfirmationWorker) resolvePendingTransactions(ctx context.Context) {
	pending, err := w.getPendingTransactions(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("Failed to get pending transactions", zap.Error(err))
		return
	}

	if len(pending) == 0 {
		return
	}

	w.logger.Info("Resolving pending transactions", zap.Int("count", len(pending)))

	sem := make(chan struct{}, w.config.MaxConcurrent)

	for _, tx := range pending {
		sem <- struct{}{}

		go func(tx *PendingTransaction) {
			defer func() { <-sem }()
			w.resolveTransaction(ctx, tx)
		}(tx)
	}

	// Wait for completion
	for i := 0; i < w.config.MaxConcurrent; i++ {
		sem <- struct{}{}
	}
}

// getPendingTransactions retrieves pending transactions old enough to check
func (w *ConfirmationWorker) getPendingTransactions(ctx context.Context, limit int) ([]*PendingTransaction, error) {
	query := `
		SELECT id, kind, external_ref, created_at
		FROM ledger_transactions
		WHERE status = 'pending' AND created_at < NOW() - $1::interval
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := w.db.QueryContext(ctx, query, w.config.MinAge.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer rows.Close()

	var pending []*PendingTransaction
	for rows.Next() {
		var tx PendingTransaction
		if err := rows.Scan(&tx.ID, &tx.Kind, &tx.ExternalRef, &tx.CreatedAt); err != nil {
			w.logger.Error("Failed to scan transaction row", zap.Error(err))
			continue
		}
		pending = append(pending, &tx)
	}

	return pending, nil
}

// resolveTransaction checks one transaction against the chain and updates
// its status. Transactions without an external reference never made it to
// the chain and are failed outright once stale.
func (w *ConfirmationWorker) resolveTransaction(ctx context.Context, tx *PendingTransaction) {
	if tx.ExternalRef == nil {
		if time.Since(tx.CreatedAt) > time.Hour {
			w.markFailed(ctx, tx.ID, "no external reference after one hour")
		}
		return
	}

	statusCtx, cancel := context.WithTimeout(ctx, w.config.StatusTimeout)
	status, err := w.client.TransactionStatus(statusCtx, *tx.ExternalRef)
	cancel()
	if err != nil {
		if ledger.IsFatal(err) {
			w.markFailed(ctx, tx.ID, err.Error())
			return
		}
		w.logger.Warn("Failed to check transaction status",
			zap.String("id", tx.ID),
			zap.Error(err))
		return
	}

	switch status {
	case ledger.StatusConfirmed:
		w.markConfirmed(ctx, tx.ID)
	case ledger.StatusFailed:
		w.markFailed(ctx, tx.ID, "rejected by the ledger")
	}
}

func (w *ConfirmationWorker) markConfirmed(ctx context.Context, id string) {
	query := `
		UPDATE ledger_transactions SET
			status = 'confirmed',
			confirmed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	if _, err := w.db.ExecContext(ctx, query, id); err != nil {
		w.logger.Error("Failed to confirm transaction", zap.String("id", id), zap.Error(err))
		return
	}
	w.logger.Debug("Transaction confirmed", zap.String("id", id))
}

func (w *ConfirmationWorker) markFailed(ctx context.Context, id, reason string) {
	query := `
		UPDATE ledger_transactions SET
			status = 'failed',
			error_message = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	if _, err := w.db.ExecContext(ctx, query, id, reason); err != nil {
		w.logger.Error("Failed to mark transaction failed", zap.String("id", id), zap.Error(err))
		return
	}
	w.logger.Debug("Transaction failed", zap.String("id", id), zap.String("reason", reason))
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = cfg.Database.GetDatabaseURL()
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}

	logger.Info("Connected to database")

	client, err := ledger.NewStellarClient(&cfg.Stellar)
	if err != nil {
		logger.Fatal("Failed to create stellar client", zap.Error(err))
	}

	worker := NewConfirmationWorker(db, client, logger, DefaultConfirmationWorkerConfig())

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	logger.Info("Confirmation worker starting")
	if err := worker.Start(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}

	logger.Info("Confirmation worker stopped")
}
