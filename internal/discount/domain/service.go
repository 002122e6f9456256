package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service validates and redeems discount codes. Validation never mutates
// usage counts; redemption happens only when the associated payment
// completes, so abandoned checkouts cannot burn a code.
type Service interface {
	Get(ctx context.Context, code string) (*DiscountCode, error)
	// Validate checks existence, disabled flag, global usage limit,
	// expiry date, level scope, and per-customer one-time use (evaluated
	// against the customer's completed payment history).
	Validate(ctx context.Context, code string, levelID, customerID snowflake.ID) (*DiscountCode, error)
	// IncrementUsage bumps the global use counter inside the caller's
	// transaction. Called exactly once per completed registration.
	IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
