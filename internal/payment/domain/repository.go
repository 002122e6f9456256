package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	// ErrDuplicateTransaction signals a safe duplicate delivery, not a
	// failure. Callers treat it as success and use the returned row.
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
)

// AggregateFilter narrows the earnings/refunds sums.
type AggregateFilter struct {
	From    *time.Time
	To      *time.Time
	Gateway string
	LevelID snowflake.ID
}

type Repository interface {
	// Insert writes a new ledger row. A non-empty transaction_id that
	// already exists returns the existing row with
	// ErrDuplicateTransaction. A pending row for the same customer,
	// level and amount is reused and updated in place instead of
	// creating a duplicate.
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) (*Payment, error)

	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*Payment, error)

	// SetStatus conditionally flips the status, stamping the
	// transaction id when one is supplied and the row has none.
	// Returns false when the row was no longer in the expected status.
	SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, transactionID string) (bool, error)

	SumByStatus(ctx context.Context, db *gorm.DB, status Status, f AggregateFilter) (decimal.Decimal, error)

	// AbandonStale flips pending rows created before the cutoff to
	// abandoned and returns how many were flipped.
	AbandonStale(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
