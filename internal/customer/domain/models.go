package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrNotFound = errors.New("customer_not_found")

// Customer ties a platform user identity to its billing state. Created
// lazily on first registration.
type Customer struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	UserID int64        `gorm:"not null;uniqueIndex"`
	Email  string       `gorm:"type:text;not null"`
	// HasTrialed is customer-scoped, not level-scoped: one trial ever,
	// across all levels.
	HasTrialed    bool      `gorm:"not null;default:false"`
	EmailVerified bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
