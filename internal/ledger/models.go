package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TransactionKind distinguishes verification records from reward mints
type TransactionKind string

const (
	KindVerify TransactionKind = "verify"
	KindMint   TransactionKind = "mint"
)

// TransactionStatus is the lifecycle status of a ledger transaction.
// Transitions only move forward: pending to confirmed, or pending to failed.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction tracks one ledger submission
type Transaction struct {
	ID             uuid.UUID         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Kind           TransactionKind   `json:"kind" gorm:"not null;index"`
	ContributionID *uuid.UUID        `json:"contribution_id,omitempty" gorm:"type:uuid;index"`
	SubmitterRef   string            `json:"submitter_ref" gorm:"not null;index"`
	Amount         int64             `json:"amount" gorm:"not null"`
	Reason         string            `json:"reason,omitempty"`
	Proof          string            `json:"proof" gorm:"not null"`
	Status         TransactionStatus `json:"status" gorm:"default:'pending';index"`
	Metadata       datatypes.JSON    `json:"metadata,omitempty"`
	ExternalRef    *string           `json:"external_ref,omitempty" gorm:"index"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
	ConfirmedAt    *time.Time        `json:"confirmed_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName overrides the GORM table name
func (Transaction) TableName() string { return "ledger_transactions" }

// ProcessedRewardKey identifies a (submitter, contribution) pair that has
// already had its reward applied. Enforces at-most-once distribution.
type ProcessedRewardKey struct {
	SubmitterRef   string
	ContributionID uuid.UUID
}

// String renders the key for use in shared stores
func (k ProcessedRewardKey) String() string {
	return fmt.Sprintf("reward:%s:%s", k.SubmitterRef, k.ContributionID)
}

// TransientError marks a retryable ledger failure (network, timeout)
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient ledger error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a rejected or invalid submission. Never retried; no
// balance change occurs.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal ledger error: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether the error can be retried
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether the error is a permanent rejection
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
