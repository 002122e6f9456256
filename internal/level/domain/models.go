package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// DurationUnit is the unit a level's billing cycle is measured in.
type DurationUnit string

const (
	DurationUnitDay   DurationUnit = "day"
	DurationUnitMonth DurationUnit = "month"
	DurationUnitYear  DurationUnit = "year"
	// DurationUnitNever marks a lifetime level: one charge, no expiration.
	DurationUnitNever DurationUnit = "never"
)

var (
	ErrNotFound = errors.New("membership_level_not_found")
)

// MembershipLevel is a priced plan definition. Read-mostly: it is treated
// as immutable for the lifetime of any single registration.
type MembershipLevel struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null;uniqueIndex"`
	// Price per billing cycle. Zero means a free level.
	Price decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	// SignupFee is signed: negative means a signup credit.
	SignupFee         decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Duration          int             `gorm:"not null"`
	DurationUnit      DurationUnit    `gorm:"type:text;not null"`
	TrialDuration     int             `gorm:"not null;default:0"`
	TrialDurationUnit DurationUnit    `gorm:"type:text;not null;default:'day'"`
	// MaximumRenewals caps successful renewals; 0 means unlimited.
	MaximumRenewals int       `gorm:"not null;default:0"`
	AccessLevel     string    `gorm:"type:text;not null;default:''"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MembershipLevel) TableName() string { return "membership_levels" }

// IsLifetime reports whether the level never expires.
func (l MembershipLevel) IsLifetime() bool {
	return l.DurationUnit == DurationUnitNever || l.Duration <= 0
}

// IsFree reports whether the level's cycle price is zero or negative.
func (l MembershipLevel) IsFree() bool {
	return !l.Price.IsPositive()
}

// HasTrial reports whether the level offers a trial period at all.
// Whether a given customer may use it is a separate, customer-scoped
// question answered by the registration calculator.
func (l MembershipLevel) HasTrial() bool {
	return l.TrialDuration > 0
}

// ExpirationFrom computes the end of one billing cycle starting at from.
// Lifetime levels return nil.
func (l MembershipLevel) ExpirationFrom(from time.Time) *time.Time {
	if l.IsLifetime() {
		return nil
	}
	end := addDuration(from, l.Duration, l.DurationUnit)
	return &end
}

// TrialEndFrom computes the end of the trial period starting at from.
func (l MembershipLevel) TrialEndFrom(from time.Time) *time.Time {
	if !l.HasTrial() {
		return nil
	}
	unit := l.TrialDurationUnit
	if unit == "" || unit == DurationUnitNever {
		unit = DurationUnitDay
	}
	end := addDuration(from, l.TrialDuration, unit)
	return &end
}

// CycleDays is the whole-day length of the billing cycle that ends at
// expiration. Used for proration, which works in whole days.
func (l MembershipLevel) CycleDays(expiration time.Time) int {
	if l.IsLifetime() {
		return 0
	}
	start := subDuration(expiration, l.Duration, l.DurationUnit)
	days := int(expiration.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

func addDuration(from time.Time, n int, unit DurationUnit) time.Time {
	switch unit {
	case DurationUnitDay:
		return from.AddDate(0, 0, n)
	case DurationUnitMonth:
		return from.AddDate(0, n, 0)
	case DurationUnitYear:
		return from.AddDate(n, 0, 0)
	default:
		return from
	}
}

func subDuration(from time.Time, n int, unit DurationUnit) time.Time {
	switch unit {
	case DurationUnitDay:
		return from.AddDate(0, 0, -n)
	case DurationUnitMonth:
		return from.AddDate(0, -n, 0)
	case DurationUnitYear:
		return from.AddDate(-n, 0, 0)
	default:
		return from
	}
}
