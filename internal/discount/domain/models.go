package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stellarwp/restrict-content-sub000/internal/money"
	"gorm.io/datatypes"
)

var (
	ErrCodeNotFound      = errors.New("discount_code_not_found")
	ErrCodeDisabled      = errors.New("discount_code_disabled")
	ErrCodeExpired       = errors.New("discount_code_expired")
	ErrCodeExhausted     = errors.New("discount_code_exhausted")
	ErrCodeNotApplicable = errors.New("discount_code_not_applicable")
	ErrCodeAlreadyUsed   = errors.New("discount_code_already_used")
)

// DiscountCode is a promotional code. Codes are matched case-insensitively
// and stored lowercase.
type DiscountCode struct {
	ID     snowflake.ID    `gorm:"primaryKey"`
	Code   string          `gorm:"type:text;not null;uniqueIndex"`
	Amount decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Unit   money.Unit      `gorm:"type:text;not null"`
	// OneTime discounts apply to the first payment only; otherwise the
	// discount also participates in every recurring charge.
	OneTime bool `gorm:"not null;default:false"`
	// MaxUses caps global redemptions; 0 means unlimited.
	MaxUses  int  `gorm:"not null;default:0"`
	UseCount int  `gorm:"not null;default:0"`
	Disabled bool `gorm:"not null;default:false"`
	// LevelScope restricts the code to specific level ids; empty means
	// the code applies to every level.
	LevelScope datatypes.JSONSlice[snowflake.ID] `gorm:"type:jsonb"`
	ExpiresAt  *time.Time
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DiscountCode) TableName() string { return "discount_codes" }

// AppliesTo reports whether the code's scope covers a level.
func (d DiscountCode) AppliesTo(levelID snowflake.ID) bool {
	if len(d.LevelScope) == 0 {
		return true
	}
	for _, id := range d.LevelScope {
		if id == levelID {
			return true
		}
	}
	return false
}

// Exhausted reports whether the global usage limit is spent.
func (d DiscountCode) Exhausted() bool {
	return d.MaxUses > 0 && d.UseCount >= d.MaxUses
}
