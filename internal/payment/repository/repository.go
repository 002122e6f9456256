package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Clock clock.Clock
}

type repository struct {
	clk clock.Clock
}

// Provide builds the gorm-backed payment repository.
func Provide(p Params) domain.Repository {
	return &repository{clk: p.Clock}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) (*domain.Payment, error) {
	if payment.TransactionID != "" {
		existing, err := r.FindByTransactionID(ctx, db, payment.TransactionID)
		if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, err
		}
		if existing != nil {
			return existing, domain.ErrDuplicateTransaction
		}
	}

	// Payment recovery: a retried checkout reuses its abandoned-in-
	// flight pending row rather than stacking duplicates.
	var pending domain.Payment
	err := db.WithContext(ctx).
		Where("customer_id = ? AND level_id = ? AND amount = ? AND status = ?",
			payment.CustomerID, payment.LevelID, payment.Amount, domain.StatusPending).
		First(&pending).Error
	if err == nil {
		return r.recoverPending(ctx, db, &pending, payment)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := r.clk.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if err := db.WithContext(ctx).Create(payment).Error; err != nil {
		// A concurrent insert can win the transaction_id race between
		// the lookup above and this write; the unique index settles it.
		if errors.Is(err, gorm.ErrDuplicatedKey) && payment.TransactionID != "" {
			existing, findErr := r.FindByTransactionID(ctx, db, payment.TransactionID)
			if findErr != nil {
				return nil, findErr
			}
			return existing, domain.ErrDuplicateTransaction
		}
		return nil, err
	}
	return payment, nil
}

func (r *repository) recoverPending(ctx context.Context, db *gorm.DB, pending, incoming *domain.Payment) (*domain.Payment, error) {
	pending.MembershipID = incoming.MembershipID
	pending.TransactionID = incoming.TransactionID
	pending.TransactionType = incoming.TransactionType
	pending.Subtotal = incoming.Subtotal
	pending.Credits = incoming.Credits
	pending.Fees = incoming.Fees
	pending.DiscountAmount = incoming.DiscountAmount
	pending.DiscountCode = incoming.DiscountCode
	pending.Gateway = incoming.Gateway
	pending.Meta = incoming.Meta
	pending.UpdatedAt = r.clk.Now()
	if err := db.WithContext(ctx).Save(pending).Error; err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*domain.Payment, error) {
	if transactionID == "" {
		return nil, domain.ErrPaymentNotFound
	}
	var payment domain.Payment
	err := db.WithContext(ctx).First(&payment, "transaction_id = ?", transactionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, transactionID string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
		     transaction_id = CASE WHEN transaction_id = '' THEN ? ELSE transaction_id END,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		transactionID,
		r.clk.Now(),
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SumByStatus(ctx context.Context, db *gorm.DB, status domain.Status, f domain.AggregateFilter) (decimal.Decimal, error) {
	query := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("status = ?", status)
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at < ?", *f.To)
	}
	if f.Gateway != "" {
		query = query.Where("gateway = ?", f.Gateway)
	}
	if f.LevelID != 0 {
		query = query.Where("level_id = ?", f.LevelID)
	}

	var total decimal.NullDecimal
	if err := query.Select("SUM(amount)").Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repository) AbandonStale(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND created_at < ?`,
		domain.StatusAbandoned,
		r.clk.Now(),
		domain.StatusPending,
		cutoff,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
