package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	discountdomain "github.com/stellarwp/restrict-content-sub000/internal/discount/domain"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/money"
	"gorm.io/gorm"
)

// EnsureDefaultLevels seeds a starter set of membership levels so a
// fresh install has something to register against. Existing levels with
// the same name are left untouched.
func EnsureDefaultLevels(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	defaults := []leveldomain.MembershipLevel{
		{
			Name:         "Free",
			Price:        decimal.Zero,
			SignupFee:    decimal.Zero,
			DurationUnit: leveldomain.DurationUnitNever,
		},
		{
			Name:              "Monthly",
			Price:             decimal.NewFromInt(9),
			SignupFee:         decimal.Zero,
			Duration:          1,
			DurationUnit:      leveldomain.DurationUnitMonth,
			TrialDuration:     14,
			TrialDurationUnit: leveldomain.DurationUnitDay,
		},
		{
			Name:         "Yearly",
			Price:        decimal.NewFromInt(90),
			SignupFee:    decimal.Zero,
			Duration:     1,
			DurationUnit: leveldomain.DurationUnitYear,
		},
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, level := range defaults {
			if err := ensureLevelTx(ctx, tx, node, level); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureWelcomeDiscount seeds a reusable launch promotion code.
func EnsureWelcomeDiscount(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var code discountdomain.DiscountCode
		err := tx.WithContext(ctx).Where("code = ?", "welcome10").First(&code).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		now := time.Now().UTC()
		code = discountdomain.DiscountCode{
			ID:        node.Generate(),
			Code:      "welcome10",
			Amount:    decimal.NewFromInt(10),
			Unit:      money.UnitPercent,
			OneTime:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&code).Error
	})
}

func ensureLevelTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, level leveldomain.MembershipLevel) error {
	var existing leveldomain.MembershipLevel
	err := tx.WithContext(ctx).Where("name = ?", level.Name).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	now := time.Now().UTC()
	level.ID = node.Generate()
	level.CreatedAt = now
	level.UpdatedAt = now
	return tx.WithContext(ctx).Create(&level).Error
}
