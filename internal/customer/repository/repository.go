package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/customer/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	GenID *snowflake.Node
	Clock clock.Clock
}

type repository struct {
	genID *snowflake.Node
	clk   clock.Clock
}

// Provide builds the gorm-backed customer repository.
func Provide(p Params) domain.Repository {
	return &repository{genID: p.GenID, clk: p.Clock}
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).First(&customer, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindByUserID(ctx context.Context, db *gorm.DB, userID int64) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).First(&customer, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindOrCreate(ctx context.Context, db *gorm.DB, userID int64, email string) (*domain.Customer, error) {
	now := r.clk.Now()
	customer := domain.Customer{
		ID:        r.genID.Generate(),
		UserID:    userID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Concurrent double-submits race on user_id; the unique index makes
	// one insert win and everyone reads the surviving row back.
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&customer).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, db, userID)
}

func (r *repository) MarkTrialed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Model(&domain.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"has_trialed": true,
			"updated_at":  r.clk.Now(),
		}).Error
}
