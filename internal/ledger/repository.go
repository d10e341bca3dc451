package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists ledger transactions
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByExternalRef(ctx context.Context, ref string) (*Transaction, error)
	SetExternalRef(ctx context.Context, id uuid.UUID, externalRef string) error
	MarkConfirmed(ctx context.Context, id uuid.UUID, externalRef string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListPending(ctx context.Context, limit int) ([]Transaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed transaction repository
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, tx *Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Status == "" {
		tx.Status = StatusPending
	}
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create ledger transaction: %w", err)
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("ledger transaction not found: %w", err)
	}
	return &tx, nil
}

func (r *gormRepository) GetByExternalRef(ctx context.Context, ref string) (*Transaction, error) {
	var tx Transaction
	if err := r.db.WithContext(ctx).First(&tx, "external_ref = ?", ref).Error; err != nil {
		return nil, fmt.Errorf("ledger transaction not found: %w", err)
	}
	return &tx, nil
}

// SetExternalRef stores the chain reference on a still-pending transaction
// so the confirmation worker can poll it
func (r *gormRepository) SetExternalRef(ctx context.Context, id uuid.UUID, externalRef string) error {
	result := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"external_ref": externalRef,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set external reference: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	return nil
}

// MarkConfirmed moves a pending transaction to confirmed. Terminal statuses
// never transition back, so the update is guarded on the current status.
func (r *gormRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, externalRef string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":       StatusConfirmed,
			"external_ref": externalRef,
			"confirmed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to confirm transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	return nil
}

// MarkFailed moves a pending transaction to failed
func (r *gormRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	result := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": reason,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	return nil
}

func (r *gormRepository) ListPending(ctx context.Context, limit int) ([]Transaction, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var txs []Transaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}
