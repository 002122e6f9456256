package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/stellarwp/restrict-content-sub000/internal/audit/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/cache"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	discountdomain "github.com/stellarwp/restrict-content-sub000/internal/discount/domain"
	membershipdomain "github.com/stellarwp/restrict-content-sub000/internal/membership/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/notification"
	"github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	Memberships membershipdomain.Service
	Discounts   discountdomain.Service
	Notifier    notification.Port
	Audit       auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clk         clock.Clock
	cfg         config.Config
	repo        domain.Repository
	memberships membershipdomain.Service
	discounts   discountdomain.Service
	notifier    notification.Port
	audit       auditdomain.Service
	aggregates  cache.Cache[string, decimal.Decimal]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clk:         p.Clock,
		cfg:         p.Config,
		repo:        p.Repo,
		memberships: p.Memberships,
		discounts:   p.Discounts,
		notifier:    p.Notifier,
		audit:       p.Audit,
		aggregates:  cache.NewTTLStore[string, decimal.Decimal](p.Clock),
	}
}

func (s *Service) Insert(ctx context.Context, p domain.InsertParams) (*domain.Payment, error) {
	payment := &domain.Payment{
		ID:              s.genID.Generate(),
		CustomerID:      p.CustomerID,
		MembershipID:    p.MembershipID,
		LevelID:         p.LevelID,
		Status:          domain.StatusPending,
		TransactionID:   p.TransactionID,
		TransactionType: p.TransactionType,
		Amount:          p.Amount,
		Subtotal:        p.Subtotal,
		Credits:         p.Credits,
		Fees:            p.Fees,
		DiscountAmount:  p.DiscountAmount,
		DiscountCode:    p.DiscountCode,
		Gateway:         p.Gateway,
		Meta:            datatypes.JSONMap(p.Meta),
	}

	inserted, err := s.repo.Insert(ctx, s.db, payment)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			s.log.Info("duplicate transaction delivery absorbed",
				zap.String("payment_id", inserted.ID.String()),
				zap.String("gateway", p.Gateway),
			)
			return inserted, err
		}
		return nil, err
	}

	s.record(ctx, auditdomain.ActionPaymentInserted, inserted.ID, map[string]any{
		"customer_id": inserted.CustomerID.String(),
		"level_id":    inserted.LevelID.String(),
		"type":        string(inserted.TransactionType),
		"amount":      inserted.Amount.String(),
	})
	return inserted, nil
}

func (s *Service) Find(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return s.backfill(ctx, payment), nil
}

func (s *Service) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	payment, err := s.repo.FindByTransactionID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	return s.backfill(ctx, payment), nil
}

// backfill repairs legacy rows missing gateway or subtotal data. The
// backfilled flag makes the repair run at most once per row.
func (s *Service) backfill(ctx context.Context, p *domain.Payment) *domain.Payment {
	if p.Backfilled {
		return p
	}
	needsGateway := p.Gateway == ""
	needsSubtotal := p.Subtotal.IsZero() && !p.Amount.IsZero()
	needsCustomer := p.CustomerID == 0
	if !needsGateway && !needsSubtotal && !needsCustomer {
		return p
	}

	if needsGateway {
		p.Gateway = "manual"
	}
	if needsSubtotal {
		// amount = subtotal - discount + fees + credits
		p.Subtotal = p.Amount.Add(p.DiscountAmount).Sub(p.Fees).Sub(p.Credits)
	}
	if needsCustomer {
		if m, err := s.memberships.Find(ctx, p.MembershipID); err == nil {
			p.CustomerID = m.CustomerID
		}
	}
	p.Backfilled = true

	err := s.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET gateway = ?, subtotal = ?, customer_id = ?, backfilled = ?, updated_at = ?
		 WHERE id = ? AND backfilled = ?`,
		p.Gateway,
		p.Subtotal,
		p.CustomerID,
		true,
		s.clk.Now(),
		p.ID,
		false,
	).Error
	if err != nil {
		s.log.Error("persist payment backfill", zap.Error(err),
			zap.String("payment_id", p.ID.String()))
	}
	return p
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status, transactionID string) error {
	payment, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	// Replayed deliveries of a state the row already reached are safe.
	if payment.Status == status {
		return nil
	}
	if !domain.CanTransition(payment.Status, status) {
		return domain.ErrInvalidStatusTransition
	}

	flipped, err := s.repo.SetStatus(ctx, s.db, id, payment.Status, status, transactionID)
	if err != nil {
		return err
	}
	if !flipped {
		// A concurrent delivery already moved the row.
		return nil
	}

	s.record(ctx, auditdomain.ActionPaymentStatusChange, id, map[string]any{
		"old_status": string(payment.Status),
		"new_status": string(status),
		"amount":     payment.Amount.String(),
		"gateway":    payment.Gateway,
	})

	switch status {
	case domain.StatusComplete:
		s.aggregates.Flush()
		s.onComplete(ctx, payment)
	case domain.StatusFailed:
		s.onFailed(ctx, payment)
	case domain.StatusRefunded:
		s.aggregates.Flush()
	}
	return nil
}

// onComplete applies the membership side effects of a completed charge.
// A referential gap is logged and swallowed; the monetary record is
// never rolled back over a missing membership.
func (s *Service) onComplete(ctx context.Context, payment *domain.Payment) {
	m, err := s.memberships.Find(ctx, payment.MembershipID)
	if err != nil {
		s.log.Error("completed payment references missing membership",
			zap.Error(err),
			zap.String("payment_id", payment.ID.String()),
			zap.String("membership_id", payment.MembershipID.String()),
			zap.String("amount", payment.Amount.String()),
		)
		return
	}

	settled := false
	switch {
	case m.PendingPaymentID != nil && *m.PendingPaymentID == payment.ID:
		activated, err := s.memberships.Activate(ctx, m.ID, payment.ID)
		if err != nil {
			s.log.Error("activate membership", zap.Error(err),
				zap.String("membership_id", m.ID.String()))
			return
		}
		settled = activated
	case payment.TransactionType == domain.TypeRenewal:
		err := s.memberships.Renew(ctx, m.ID)
		if err != nil {
			if errors.Is(err, membershipdomain.ErrRenewalLimitReached) {
				s.log.Warn("renewal past the billing cap",
					zap.String("membership_id", m.ID.String()))
				return
			}
			s.log.Error("renew membership", zap.Error(err),
				zap.String("membership_id", m.ID.String()))
			return
		}
		settled = true
	}

	if settled && payment.DiscountCode != "" {
		if err := s.consumeDiscount(ctx, payment.DiscountCode); err != nil {
			s.log.Error("increment discount usage", zap.Error(err),
				zap.String("code", payment.DiscountCode))
		}
	}

	s.notify(ctx, notification.KindPaymentReceived, notification.Payload{
		CustomerID:   payment.CustomerID,
		MembershipID: payment.MembershipID,
		PaymentID:    payment.ID,
		Amount:       payment.Amount,
		Currency:     s.cfg.Billing.Currency,
	})
}

// onFailed disables a brand-new signup but leaves an existing
// membership untouched so the grace period runs until the sweep.
func (s *Service) onFailed(ctx context.Context, payment *domain.Payment) {
	var err error
	if payment.TransactionType == domain.TypeRenewal {
		err = s.memberships.RecordFailedBilling(ctx, payment.MembershipID)
	} else {
		err = s.memberships.Disable(ctx, payment.MembershipID)
	}
	if err != nil {
		s.log.Error("apply failed charge to membership", zap.Error(err),
			zap.String("payment_id", payment.ID.String()),
			zap.String("membership_id", payment.MembershipID.String()),
		)
	}
}

func (s *Service) consumeDiscount(ctx context.Context, code string) error {
	row, err := s.discounts.Get(ctx, code)
	if err != nil {
		return err
	}
	return s.discounts.IncrementUsage(ctx, s.db, row.ID)
}

func (s *Service) Earnings(ctx context.Context, f domain.AggregateFilter) (decimal.Decimal, error) {
	return s.sumCached(ctx, domain.StatusComplete, f)
}

func (s *Service) Refunds(ctx context.Context, f domain.AggregateFilter) (decimal.Decimal, error) {
	return s.sumCached(ctx, domain.StatusRefunded, f)
}

func (s *Service) sumCached(ctx context.Context, status domain.Status, f domain.AggregateFilter) (decimal.Decimal, error) {
	key := aggregateKey(status, f)
	if total, ok := s.aggregates.Get(key); ok {
		return total, nil
	}
	total, err := s.repo.SumByStatus(ctx, s.db, status, f)
	if err != nil {
		return decimal.Zero, err
	}
	s.aggregates.Set(key, total, s.cfg.EarningsCacheTTL)
	return total, nil
}

func aggregateKey(status domain.Status, f domain.AggregateFilter) string {
	from, to := "", ""
	if f.From != nil {
		from = f.From.UTC().Format("2006-01-02T15:04:05")
	}
	if f.To != nil {
		to = f.To.UTC().Format("2006-01-02T15:04:05")
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d", status, from, to, f.Gateway, f.LevelID)
}

func (s *Service) AbandonStale(ctx context.Context) (int64, error) {
	cutoff := s.clk.Now().Add(-s.cfg.Sweep.PendingPaymentMaxAge)
	flipped, err := s.repo.AbandonStale(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if flipped > 0 {
		s.log.Info("abandoned stale pending payments", zap.Int64("count", flipped))
	}
	return flipped, nil
}

func (s *Service) record(ctx context.Context, action string, id snowflake.ID, metadata map[string]any) {
	if err := s.audit.Record(ctx, action, auditdomain.TargetPayment, id, metadata); err != nil {
		s.log.Error("write audit log", zap.Error(err), zap.String("action", action))
	}
}

func (s *Service) notify(ctx context.Context, kind notification.Kind, payload notification.Payload) {
	if err := s.notifier.Send(ctx, kind, payload); err != nil {
		s.log.Error("dispatch notification", zap.Error(err), zap.String("kind", string(kind)))
	}
}
