package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	discountdomain "github.com/stellarwp/restrict-content-sub000/internal/discount/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	clk clock.Clock
}

func NewService(p Params) discountdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("discount.service"),
		clk: p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, code string) (*discountdomain.DiscountCode, error) {
	normalized := normalizeCode(code)
	if normalized == "" {
		return nil, discountdomain.ErrCodeNotFound
	}

	var row discountdomain.DiscountCode
	err := s.db.WithContext(ctx).First(&row, "code = ?", normalized).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, discountdomain.ErrCodeNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (s *Service) Validate(ctx context.Context, code string, levelID, customerID snowflake.ID) (*discountdomain.DiscountCode, error) {
	row, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if row.Disabled {
		return nil, discountdomain.ErrCodeDisabled
	}
	if row.Exhausted() {
		return nil, discountdomain.ErrCodeExhausted
	}
	if row.ExpiresAt != nil && s.clk.Now().After(*row.ExpiresAt) {
		return nil, discountdomain.ErrCodeExpired
	}
	if !row.AppliesTo(levelID) {
		return nil, discountdomain.ErrCodeNotApplicable
	}

	if row.OneTime && customerID != 0 {
		used, err := s.customerHasRedeemed(ctx, row.Code, customerID)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, discountdomain.ErrCodeAlreadyUsed
		}
	}

	return row, nil
}

// customerHasRedeemed checks the customer's completed payment history.
// Pending and abandoned attempts do not count against the limit.
func (s *Service) customerHasRedeemed(ctx context.Context, code string, customerID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payments
		 WHERE customer_id = ? AND discount_code = ? AND status = 'complete'`,
		customerID,
		code,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if db == nil {
		db = s.db
	}
	return db.WithContext(ctx).Exec(
		`UPDATE discount_codes
		 SET use_count = use_count + 1, updated_at = ?
		 WHERE id = ?`,
		s.clk.Now(),
		id,
	).Error
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
