package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MembershipLevel, error)
	List(ctx context.Context, db *gorm.DB) ([]MembershipLevel, error)
}
