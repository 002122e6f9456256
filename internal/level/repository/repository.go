package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	"gorm.io/gorm"
)

type repository struct{}

// Provide builds the gorm-backed level repository.
func Provide() domain.Repository {
	return &repository{}
}

func (repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.MembershipLevel, error) {
	var level domain.MembershipLevel
	err := db.WithContext(ctx).First(&level, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &level, nil
}

func (repository) List(ctx context.Context, db *gorm.DB) ([]domain.MembershipLevel, error) {
	var levels []domain.MembershipLevel
	if err := db.WithContext(ctx).Order("id").Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}
