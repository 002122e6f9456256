package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Actions recorded by the billing core. Every membership status
// transition and payment status change leaves one of these behind.
const (
	ActionMembershipCreated   = "membership.created"
	ActionMembershipActivated = "membership.activated"
	ActionMembershipRenewed   = "membership.renewed"
	ActionMembershipCancelled = "membership.cancelled"
	ActionMembershipExpired   = "membership.expired"
	ActionMembershipDisabled  = "membership.disabled"
	ActionMembershipUpgraded  = "membership.upgraded"
	ActionPaymentInserted     = "payment.inserted"
	ActionPaymentStatusChange = "payment.status_changed"
)

// Target types for audit rows.
const (
	TargetMembership = "membership"
	TargetPayment    = "payment"
)

// AuditLog is an immutable record of a billing action with enough context
// to reconstruct what happened: ids, amounts, old/new status.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   string            `gorm:"type:text;not null;index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
