package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/stellarwp/restrict-content-sub000/internal/audit/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	customerdomain "github.com/stellarwp/restrict-content-sub000/internal/customer/domain"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/membership/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/notification"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Levels    leveldomain.Repository
	Customers customerdomain.Repository
	Notifier  notification.Port
	Audit     auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clk       clock.Clock
	cfg       config.Config
	levels    leveldomain.Repository
	customers customerdomain.Repository
	notifier  notification.Port
	audit     auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("membership.service"),
		genID:     p.GenID,
		clk:       p.Clock,
		cfg:       p.Config,
		levels:    p.Levels,
		customers: p.Customers,
		notifier:  p.Notifier,
		audit:     p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, p domain.CreateParams) (*domain.Membership, error) {
	now := s.clk.Now()
	m := &domain.Membership{
		ID:              s.genID.Generate(),
		CustomerID:      p.CustomerID,
		LevelID:         p.LevelID,
		Status:          domain.StatusPending,
		SubscriptionKey: uuid.NewString(),
		AutoRenew:       p.AutoRenew,
		Gateway:         p.Gateway,
		InitialAmount:   p.InitialAmount,
		RecurringAmount: p.RecurringAmount,
		Trialing:        p.Trialing,
		MaximumRenewals: p.MaximumRenewals,
		UpgradedFrom:    p.UpgradedFrom,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}

	s.record(ctx, auditdomain.ActionMembershipCreated, m.ID, map[string]any{
		"customer_id": m.CustomerID.String(),
		"level_id":    m.LevelID.String(),
		"gateway":     m.Gateway,
	})
	return m, nil
}

func (s *Service) Find(ctx context.Context, id snowflake.ID) (*domain.Membership, error) {
	var m domain.Membership
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Service) FindBySubscriptionKey(ctx context.Context, key string) (*domain.Membership, error) {
	var m domain.Membership
	err := s.db.WithContext(ctx).First(&m, "subscription_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Service) FindForCustomer(ctx context.Context, customerID snowflake.ID) (*domain.Membership, error) {
	var m domain.Membership
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND disabled = ?", customerID, false).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Service) AttachPendingPayment(ctx context.Context, membershipID, paymentID snowflake.ID) error {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET pending_payment_id = ?, updated_at = ?
		 WHERE id = ? AND disabled = ?`,
		paymentID,
		s.clk.Now(),
		membershipID,
		false,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMembershipNotFound
	}
	return nil
}

// Activate is the single pending-to-active edge. The conditional update
// on pending_payment_id guarantees exactly one completion wins; a stale
// or repeated completion affects zero rows and returns false.
func (s *Service) Activate(ctx context.Context, membershipID, paymentID snowflake.ID) (bool, error) {
	m, err := s.Find(ctx, membershipID)
	if err != nil {
		return false, err
	}
	if m.Disabled {
		return false, domain.ErrMembershipDisabled
	}

	level, err := s.levels.FindByID(ctx, s.db, m.LevelID)
	if err != nil {
		return false, err
	}

	now := s.clk.Now()
	var expiration, trialEnd *time.Time
	if m.Trialing {
		trialEnd = level.TrialEndFrom(now)
		expiration = trialEnd
	} else {
		expiration = level.ExpirationFrom(now)
	}

	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET status = ?, pending_payment_id = NULL, expiration_date = ?,
		     trial_end_date = ?, times_billed = times_billed + 1, updated_at = ?
		 WHERE id = ? AND pending_payment_id = ?`,
		domain.StatusActive,
		expiration,
		trialEnd,
		now,
		membershipID,
		paymentID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		s.log.Info("activation skipped, pending payment pointer already consumed",
			zap.String("membership_id", membershipID.String()),
			zap.String("payment_id", paymentID.String()),
		)
		return false, nil
	}

	if m.Trialing {
		if err := s.customers.MarkTrialed(ctx, s.db, m.CustomerID); err != nil {
			s.log.Error("mark customer trialed", zap.Error(err),
				zap.String("customer_id", m.CustomerID.String()))
		}
	}

	// Activation of an upgrade supersedes the membership it replaced.
	if m.UpgradedFrom != nil {
		if err := s.Cancel(ctx, *m.UpgradedFrom, true); err != nil &&
			!errors.Is(err, domain.ErrInvalidTransition) &&
			!errors.Is(err, domain.ErrMembershipNotFound) {
			s.log.Error("cancel superseded membership", zap.Error(err),
				zap.String("membership_id", m.UpgradedFrom.String()))
		}
	}

	s.record(ctx, auditdomain.ActionMembershipActivated, membershipID, map[string]any{
		"payment_id": paymentID.String(),
		"trialing":   m.Trialing,
	})

	kind := notification.KindActivationActive
	switch {
	case m.Trialing:
		kind = notification.KindActivationTrial
	case m.InitialAmount.IsZero() && m.RecurringAmount.IsZero():
		kind = notification.KindActivationFree
	}
	s.notify(ctx, kind, notification.Payload{
		CustomerID:   m.CustomerID,
		MembershipID: m.ID,
		PaymentID:    paymentID,
		LevelName:    level.Name,
		Amount:       m.InitialAmount,
		Currency:     s.cfg.Billing.Currency,
	})

	return true, nil
}

func (s *Service) Renew(ctx context.Context, membershipID snowflake.ID) error {
	m, err := s.Find(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.Disabled {
		return domain.ErrMembershipDisabled
	}
	// Pending rows renew through activation, never directly.
	if m.Status == domain.StatusPending || !domain.CanTransition(m.Status, domain.StatusActive) {
		return domain.ErrInvalidTransition
	}
	// The initial activation counts as the first bill, so a cap of N
	// renewals allows N+1 bills in total.
	if m.MaximumRenewals > 0 && m.TimesBilled >= m.MaximumRenewals+1 {
		return domain.ErrRenewalLimitReached
	}

	level, err := s.levels.FindByID(ctx, s.db, m.LevelID)
	if err != nil {
		return err
	}

	now := s.clk.Now()
	base := now
	if m.ExpirationDate != nil && m.ExpirationDate.After(now) {
		base = *m.ExpirationDate
	}
	expiration := level.ExpirationFrom(base)

	// A renewal that hits the cap switches off auto-renew so the
	// gateway subscription is not re-charged past the limit.
	timesBilled := m.TimesBilled + 1
	autoRenew := m.AutoRenew
	if m.MaximumRenewals > 0 && timesBilled >= m.MaximumRenewals+1 {
		autoRenew = false
	}

	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET status = ?, expiration_date = ?, trial_end_date = NULL,
		     times_billed = ?, auto_renew = ?, pending_payment_id = NULL,
		     failed_billing_notices = 0, last_failed_billing_notice_at = NULL,
		     updated_at = ?
		 WHERE id = ? AND times_billed = ?`,
		domain.StatusActive,
		expiration,
		timesBilled,
		autoRenew,
		now,
		membershipID,
		m.TimesBilled,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Concurrent renewal already advanced the counter.
		return nil
	}

	s.record(ctx, auditdomain.ActionMembershipRenewed, membershipID, map[string]any{
		"times_billed": timesBilled,
		"expires_at":   expiration,
	})
	return nil
}

func (s *Service) Cancel(ctx context.Context, membershipID snowflake.ID, wasUpgraded bool) error {
	m, err := s.Find(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.Disabled {
		return domain.ErrMembershipDisabled
	}
	if !domain.CanTransition(m.Status, domain.StatusCancelled) {
		return domain.ErrInvalidTransition
	}

	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET status = ?, auto_renew = ?, was_upgraded = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCancelled,
		false,
		wasUpgraded,
		s.clk.Now(),
		membershipID,
		m.Status,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	s.record(ctx, auditdomain.ActionMembershipCancelled, membershipID, map[string]any{
		"was_upgraded": wasUpgraded,
	})

	if !wasUpgraded {
		s.notify(ctx, notification.KindCancellation, notification.Payload{
			CustomerID:   m.CustomerID,
			MembershipID: m.ID,
		})
	}
	return nil
}

// Expire flips active or cancelled rows in one conditional update so a
// membership expired by a concurrent sweep is not re-notified.
func (s *Service) Expire(ctx context.Context, membershipID snowflake.ID) (bool, error) {
	m, err := s.Find(ctx, membershipID)
	if err != nil {
		return false, err
	}
	if m.Disabled {
		return false, domain.ErrMembershipDisabled
	}

	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET status = ?, auto_renew = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusExpired,
		false,
		s.clk.Now(),
		membershipID,
		domain.StatusActive,
		domain.StatusCancelled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if m.Status == domain.StatusPending {
			return false, domain.ErrInvalidTransition
		}
		return false, nil
	}

	s.record(ctx, auditdomain.ActionMembershipExpired, membershipID, nil)
	s.notify(ctx, notification.KindExpiration, notification.Payload{
		CustomerID:   m.CustomerID,
		MembershipID: m.ID,
	})
	return true, nil
}

func (s *Service) Disable(ctx context.Context, membershipID snowflake.ID) error {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET disabled = ?, auto_renew = ?, updated_at = ?
		 WHERE id = ? AND disabled = ?`,
		true,
		false,
		s.clk.Now(),
		membershipID,
		false,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	s.record(ctx, auditdomain.ActionMembershipDisabled, membershipID, nil)
	return nil
}

func (s *Service) RecordFailedBilling(ctx context.Context, membershipID snowflake.ID) error {
	m, err := s.Find(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.Disabled {
		return domain.ErrMembershipDisabled
	}

	now := s.clk.Now()
	if m.FailedBillingNotices >= s.cfg.Notifications.MaxFailedBillingNotices {
		return nil
	}
	if m.LastFailedBillingNoticeAt != nil &&
		now.Sub(*m.LastFailedBillingNoticeAt) < s.cfg.Notifications.FailedBillingCooldown {
		return nil
	}

	// The counter condition makes the notice-and-increment pair
	// effectively exactly-once under concurrent webhook deliveries.
	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET failed_billing_notices = failed_billing_notices + 1,
		     last_failed_billing_notice_at = ?, updated_at = ?
		 WHERE id = ? AND failed_billing_notices = ?`,
		now,
		now,
		membershipID,
		m.FailedBillingNotices,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	s.notify(ctx, notification.KindRenewalPaymentFailed, notification.Payload{
		CustomerID:   m.CustomerID,
		MembershipID: m.ID,
		Amount:       m.RecurringAmount,
		Currency:     s.cfg.Billing.Currency,
	})
	return nil
}

func (s *Service) BindGatewaySubscription(ctx context.Context, membershipID snowflake.ID, gatewayCustomerID, gatewaySubscriptionID string) error {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE memberships
		 SET gateway_customer_id = ?, gateway_subscription_id = ?, updated_at = ?
		 WHERE id = ?`,
		gatewayCustomerID,
		gatewaySubscriptionID,
		s.clk.Now(),
		membershipID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMembershipNotFound
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, id snowflake.ID, metadata map[string]any) {
	if err := s.audit.Record(ctx, action, auditdomain.TargetMembership, id, metadata); err != nil {
		s.log.Error("write audit log", zap.Error(err), zap.String("action", action))
	}
}

func (s *Service) notify(ctx context.Context, kind notification.Kind, payload notification.Payload) {
	if err := s.notifier.Send(ctx, kind, payload); err != nil {
		s.log.Error("dispatch notification", zap.Error(err), zap.String("kind", string(kind)))
	}
}
