package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status is a payment's ledger state. A row leaves pending for exactly
// one terminal-ish state; only complete can later become refunded.
type Status string

const (
	StatusPending   Status = "pending"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusAbandoned Status = "abandoned"
)

// Type classifies what the charge paid for.
type Type string

const (
	TypeNew       Type = "new"
	TypeRenewal   Type = "renewal"
	TypeUpgrade   Type = "upgrade"
	TypeDowngrade Type = "downgrade"
)

// Payment is one row of the monetary ledger. Rows are never deleted;
// a new billing cycle gets a new row.
type Payment struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	CustomerID   snowflake.ID `gorm:"not null;index"`
	MembershipID snowflake.ID `gorm:"not null;index"`
	LevelID      snowflake.ID `gorm:"not null"`
	Status       Status       `gorm:"type:text;not null;index"`
	// TransactionID is the external gateway id. Unique when non-empty;
	// the primary dedup key against repeated webhook delivery.
	TransactionID   string `gorm:"type:text;not null;default:'';index"`
	TransactionType Type   `gorm:"type:text;not null"`
	// Amount is the signed total charged. Subtotal + Fees + Credits -
	// DiscountAmount, as computed at registration time.
	Amount         decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Credits        decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Fees           decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	DiscountCode   string          `gorm:"type:text;not null;default:''"`
	Gateway        string          `gorm:"type:text;not null;default:''"`
	// Backfilled marks a legacy row already repaired on read, so the
	// repair runs at most once.
	Backfilled bool              `gorm:"not null;default:false"`
	Meta       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

var statusTransitions = map[Status][]Status{
	StatusPending:  {StatusComplete, StatusFailed, StatusAbandoned},
	StatusComplete: {StatusRefunded},
}

// CanTransition reports whether a status change is a legal edge. A row
// never cycles back from a terminal state.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
