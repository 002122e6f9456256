package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID int64) (*Customer, error)
	// FindOrCreate returns the customer for a user identity, creating the
	// row on first registration.
	FindOrCreate(ctx context.Context, db *gorm.DB, userID int64, email string) (*Customer, error)
	// MarkTrialed flips has_trialed once a trial activation happens.
	MarkTrialed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
