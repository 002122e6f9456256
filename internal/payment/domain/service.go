package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var ErrInvalidStatusTransition = errors.New("invalid_payment_status_transition")

// InsertParams carries the calculator output the ledger records for one
// charge attempt.
type InsertParams struct {
	CustomerID      snowflake.ID
	MembershipID    snowflake.ID
	LevelID         snowflake.ID
	TransactionID   string
	TransactionType Type
	Amount          decimal.Decimal
	Subtotal        decimal.Decimal
	Credits         decimal.Decimal
	Fees            decimal.Decimal
	DiscountAmount  decimal.Decimal
	DiscountCode    string
	Gateway         string
	Meta            map[string]any
}

type Service interface {
	// Insert records a pending charge. Duplicate transaction ids come
	// back as the existing row plus ErrDuplicateTransaction.
	Insert(ctx context.Context, p InsertParams) (*Payment, error)

	Find(ctx context.Context, id snowflake.ID) (*Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*Payment, error)

	// UpdateStatus drives the ledger state machine and its side
	// effects. Completion is the sole trigger of membership activation
	// and renewal and stays a no-op when replayed.
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status, transactionID string) error

	Earnings(ctx context.Context, f AggregateFilter) (decimal.Decimal, error)
	Refunds(ctx context.Context, f AggregateFilter) (decimal.Decimal, error)

	// AbandonStale is the sweep hook for pending rows past the
	// configured age.
	AbandonStale(ctx context.Context) (int64, error)
}
