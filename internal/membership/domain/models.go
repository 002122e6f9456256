package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status is a membership's lifecycle state.
type Status string

const (
	// StatusPending awaits its first completed payment.
	StatusPending Status = "pending"
	// StatusActive is a member in good standing.
	StatusActive Status = "active"
	// StatusCancelled will not renew but retains access until expiration.
	StatusCancelled Status = "cancelled"
	// StatusExpired has lost access.
	StatusExpired Status = "expired"
)

// Membership is one customer's instance of being subscribed to a level.
type Membership struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	CustomerID snowflake.ID `gorm:"not null;index"`
	LevelID    snowflake.ID `gorm:"not null;index"`
	Status     Status       `gorm:"type:text;not null;index"`
	// SubscriptionKey is the opaque lookup/idempotency key a recurring
	// gateway subscription binds to. Unique and immutable once bound.
	SubscriptionKey       string `gorm:"type:text;not null;uniqueIndex"`
	AutoRenew             bool   `gorm:"not null;default:false"`
	Gateway               string `gorm:"type:text;not null;default:''"`
	GatewayCustomerID     string `gorm:"type:text;not null;default:''"`
	GatewaySubscriptionID string `gorm:"type:text;not null;default:''"`
	// InitialAmount and RecurringAmount snapshot the calculator output
	// at registration time; renewals charge RecurringAmount.
	InitialAmount   decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	RecurringAmount decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	// ExpirationDate nil means lifetime.
	ExpirationDate *time.Time `gorm:"index"`
	TrialEndDate   *time.Time
	// Trialing marks a registration whose activation starts a trial
	// rather than a paid cycle.
	Trialing    bool `gorm:"not null;default:false"`
	TimesBilled int  `gorm:"not null;default:0"`
	// MaximumRenewals caps successful renewals; 0 means unlimited.
	MaximumRenewals int `gorm:"not null;default:0"`
	// PendingPaymentID points at the unique pending payment whose
	// completion activates this membership. Cleared exactly once by the
	// activation CAS; a repeat completion then finds nothing to do.
	PendingPaymentID *snowflake.ID `gorm:"index"`
	// Disabled memberships are dormant failed attempts, retained for
	// audit. Orthogonal to Status; every mutation rejects them.
	Disabled bool `gorm:"not null;default:false"`
	// WasUpgraded suppresses the cancellation notice when this
	// membership was cancelled because a replacement superseded it.
	WasUpgraded bool `gorm:"not null;default:false"`
	// UpgradedFrom back-references the membership this one supersedes.
	UpgradedFrom *snowflake.ID
	// Failed-billing notice throttle state.
	FailedBillingNotices      int `gorm:"not null;default:0"`
	LastFailedBillingNoticeAt *time.Time
	CreatedAt                 time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                 time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "memberships" }

// IsLifetime reports whether the membership never expires.
func (m Membership) IsLifetime() bool { return m.ExpirationDate == nil }
