package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	customerdomain "github.com/stellarwp/restrict-content-sub000/internal/customer/domain"
	customerrepo "github.com/stellarwp/restrict-content-sub000/internal/customer/repository"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	levelrepo "github.com/stellarwp/restrict-content-sub000/internal/level/repository"
	"github.com/stellarwp/restrict-content-sub000/internal/membership/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/notification"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type capturingPort struct {
	mu    sync.Mutex
	kinds []notification.Kind
}

func (p *capturingPort) Send(_ context.Context, kind notification.Kind, _ notification.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return nil
}

func (p *capturingPort) count(kind notification.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, string, string, snowflake.ID, map[string]any) error {
	return nil
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clk   *testClock
	port  *capturingPort
	genID *snowflake.Node
}

var fixtureSeq atomic.Int64

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:membership_test_%d?mode=memory&cache=shared", fixtureSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Membership{},
		&leveldomain.MembershipLevel{},
		&customerdomain.Customer{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	genID, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := &testClock{at: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	port := &capturingPort{}

	svc := &Service{
		db:    db,
		log:   zap.NewNop(),
		genID: genID,
		clk:   clk,
		cfg: config.Config{
			Billing: config.Billing{Currency: "USD", CurrencyDecimals: 2},
			Notifications: config.Notifications{
				MaxFailedBillingNotices: 3,
				FailedBillingCooldown:   20 * time.Hour,
			},
		},
		levels:    levelrepo.Provide(),
		customers: customerrepo.Provide(customerrepo.Params{GenID: genID, Clock: clk}),
		notifier:  port,
		audit:     nopAudit{},
	}
	return &fixture{svc: svc, db: db, clk: clk, port: port, genID: genID}
}

func (f *fixture) insertLevel(t *testing.T, level *leveldomain.MembershipLevel) *leveldomain.MembershipLevel {
	t.Helper()
	if level.ID == 0 {
		level.ID = f.genID.Generate()
	}
	if err := f.db.Create(level).Error; err != nil {
		t.Fatalf("insert level: %v", err)
	}
	return level
}

func (f *fixture) insertCustomer(t *testing.T) *customerdomain.Customer {
	t.Helper()
	c := &customerdomain.Customer{
		ID:     f.genID.Generate(),
		UserID: int64(f.genID.Generate()),
		Email:  "member@example.com",
	}
	if err := f.db.Create(c).Error; err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	return c
}

func (f *fixture) createPending(t *testing.T, level *leveldomain.MembershipLevel, p domain.CreateParams) (*domain.Membership, snowflake.ID) {
	t.Helper()
	if p.LevelID == 0 {
		p.LevelID = level.ID
	}
	if p.CustomerID == 0 {
		p.CustomerID = f.insertCustomer(t).ID
	}
	m, err := f.svc.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("create membership: %v", err)
	}
	paymentID := f.genID.Generate()
	if err := f.svc.AttachPendingPayment(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("attach pending payment: %v", err)
	}
	return m, paymentID
}

func monthlyLevel() *leveldomain.MembershipLevel {
	return &leveldomain.MembershipLevel{
		Name:         "Gold",
		Price:        decimal.NewFromInt(50),
		Duration:     1,
		DurationUnit: leveldomain.DurationUnitMonth,
	}
}

func TestActivateConsumesPendingPaymentOnce(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{
		Gateway:         "stripe",
		InitialAmount:   decimal.NewFromInt(50),
		RecurringAmount: decimal.NewFromInt(50),
	})

	activated, err := f.svc.Activate(context.Background(), m.ID, paymentID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !activated {
		t.Fatal("expected first activation to win")
	}

	again, err := f.svc.Activate(context.Background(), m.ID, paymentID)
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if again {
		t.Fatal("expected repeated activation to be a no-op")
	}

	got, err := f.svc.Find(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if got.TimesBilled != 1 {
		t.Fatalf("times_billed = %d, want 1", got.TimesBilled)
	}
	if got.PendingPaymentID != nil {
		t.Fatal("pending payment pointer should be cleared")
	}
	want := f.clk.Now().AddDate(0, 1, 0)
	if got.ExpirationDate == nil || !got.ExpirationDate.Equal(want) {
		t.Fatalf("expiration = %v, want %v", got.ExpirationDate, want)
	}
	if n := f.port.count(notification.KindActivationActive); n != 1 {
		t.Fatalf("activation notices = %d, want 1", n)
	}
}

func TestActivateTrialMarksCustomerTrialed(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, &leveldomain.MembershipLevel{
		Name:              "Gold Trial",
		Price:             decimal.NewFromInt(50),
		Duration:          1,
		DurationUnit:      leveldomain.DurationUnitMonth,
		TrialDuration:     14,
		TrialDurationUnit: leveldomain.DurationUnitDay,
	})
	customer := f.insertCustomer(t)
	m, paymentID := f.createPending(t, level, domain.CreateParams{
		CustomerID:      customer.ID,
		Gateway:         "stripe",
		Trialing:        true,
		RecurringAmount: decimal.NewFromInt(50),
	})

	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	got, _ := f.svc.Find(context.Background(), m.ID)
	wantEnd := f.clk.Now().AddDate(0, 0, 14)
	if got.TrialEndDate == nil || !got.TrialEndDate.Equal(wantEnd) {
		t.Fatalf("trial end = %v, want %v", got.TrialEndDate, wantEnd)
	}
	if got.ExpirationDate == nil || !got.ExpirationDate.Equal(wantEnd) {
		t.Fatal("trial expiration should match trial end")
	}

	var reloaded customerdomain.Customer
	if err := f.db.First(&reloaded, "id = ?", customer.ID).Error; err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	if !reloaded.HasTrialed {
		t.Fatal("customer should be marked trialed")
	}
	if n := f.port.count(notification.KindActivationTrial); n != 1 {
		t.Fatalf("trial notices = %d, want 1", n)
	}
}

func TestActivateFreeLevelSendsFreeNotice(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, &leveldomain.MembershipLevel{
		Name:         "Free",
		Duration:     0,
		DurationUnit: leveldomain.DurationUnitNever,
	})
	m, paymentID := f.createPending(t, level, domain.CreateParams{Gateway: "manual"})

	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	got, _ := f.svc.Find(context.Background(), m.ID)
	if got.ExpirationDate != nil {
		t.Fatal("lifetime membership should have no expiration")
	}
	if n := f.port.count(notification.KindActivationFree); n != 1 {
		t.Fatalf("free notices = %d, want 1", n)
	}
}

func TestRenewExtendsFromCurrentExpiration(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{
		Gateway:         "stripe",
		RecurringAmount: decimal.NewFromInt(50),
	})
	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	firstExpiration := f.clk.Now().AddDate(0, 1, 0)

	// Renewal arrives a few days early; the new cycle stacks on top of
	// the unexpired one.
	f.clk.Advance(27 * 24 * time.Hour)
	if err := f.svc.Renew(context.Background(), m.ID); err != nil {
		t.Fatalf("renew: %v", err)
	}

	got, _ := f.svc.Find(context.Background(), m.ID)
	want := firstExpiration.AddDate(0, 1, 0)
	if got.ExpirationDate == nil || !got.ExpirationDate.Equal(want) {
		t.Fatalf("expiration = %v, want %v", got.ExpirationDate, want)
	}
	if got.TimesBilled != 2 {
		t.Fatalf("times_billed = %d, want 2", got.TimesBilled)
	}
}

func TestRenewLapsedCountsFromNow(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{Gateway: "manual"})
	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	f.clk.Advance(60 * 24 * time.Hour)
	if err := f.svc.Renew(context.Background(), m.ID); err != nil {
		t.Fatalf("renew: %v", err)
	}

	got, _ := f.svc.Find(context.Background(), m.ID)
	want := f.clk.Now().AddDate(0, 1, 0)
	if got.ExpirationDate == nil || !got.ExpirationDate.Equal(want) {
		t.Fatalf("expiration = %v, want %v", got.ExpirationDate, want)
	}
}

func TestRenewalCapFlipsAutoRenewThenRejects(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{
		Gateway:         "stripe",
		AutoRenew:       true,
		MaximumRenewals: 1,
		RecurringAmount: decimal.NewFromInt(50),
	})
	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// One renewal is allowed on top of the initial billing.
	if err := f.svc.Renew(context.Background(), m.ID); err != nil {
		t.Fatalf("first renew: %v", err)
	}
	got, _ := f.svc.Find(context.Background(), m.ID)
	if got.AutoRenew {
		t.Fatal("auto_renew should flip off once the cap is reached")
	}

	err := f.svc.Renew(context.Background(), m.ID)
	if !errors.Is(err, domain.ErrRenewalLimitReached) {
		t.Fatalf("expected renewal limit error, got %v", err)
	}
}

func TestRenewRejectsPending(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, _ := f.createPending(t, level, domain.CreateParams{Gateway: "stripe"})

	err := f.svc.Renew(context.Background(), m.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestCancelKeepsAccessUntilExpiration(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{
		Gateway:   "stripe",
		AutoRenew: true,
	})
	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := f.svc.Cancel(context.Background(), m.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := f.svc.Find(context.Background(), m.ID)
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.AutoRenew {
		t.Fatal("cancel must switch off auto_renew")
	}
	if got.ExpirationDate == nil {
		t.Fatal("cancel must not touch the expiration date")
	}
	if n := f.port.count(notification.KindCancellation); n != 1 {
		t.Fatalf("cancellation notices = %d, want 1", n)
	}
}

func TestCancelRejectsPending(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, _ := f.createPending(t, level, domain.CreateParams{Gateway: "stripe"})

	err := f.svc.Cancel(context.Background(), m.ID, false)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestUpgradeActivationSupersedesOldMembership(t *testing.T) {
	f := setupFixture(t)
	gold := f.insertLevel(t, monthlyLevel())
	platinum := f.insertLevel(t, &leveldomain.MembershipLevel{
		Name:         "Platinum",
		Price:        decimal.NewFromInt(90),
		Duration:     1,
		DurationUnit: leveldomain.DurationUnitMonth,
	})
	customer := f.insertCustomer(t)

	old, oldPayment := f.createPending(t, gold, domain.CreateParams{
		CustomerID: customer.ID,
		Gateway:    "stripe",
	})
	if _, err := f.svc.Activate(context.Background(), old.ID, oldPayment); err != nil {
		t.Fatalf("activate old: %v", err)
	}

	next, nextPayment := f.createPending(t, platinum, domain.CreateParams{
		CustomerID:   customer.ID,
		Gateway:      "stripe",
		UpgradedFrom: &old.ID,
	})
	if _, err := f.svc.Activate(context.Background(), next.ID, nextPayment); err != nil {
		t.Fatalf("activate upgrade: %v", err)
	}

	superseded, _ := f.svc.Find(context.Background(), old.ID)
	if superseded.Status != domain.StatusCancelled {
		t.Fatalf("old status = %s, want cancelled", superseded.Status)
	}
	if !superseded.WasUpgraded {
		t.Fatal("old membership should be flagged was_upgraded")
	}
	if n := f.port.count(notification.KindCancellation); n != 0 {
		t.Fatalf("upgrade must suppress the cancellation notice, got %d", n)
	}
}

func TestExpireFlipsOnce(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{Gateway: "manual"})
	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	expired, err := f.svc.Expire(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if !expired {
		t.Fatal("expected first expire to flip the row")
	}

	again, err := f.svc.Expire(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("second expire: %v", err)
	}
	if again {
		t.Fatal("expected repeated expire to be a no-op")
	}
	if n := f.port.count(notification.KindExpiration); n != 1 {
		t.Fatalf("expiration notices = %d, want 1", n)
	}
}

func TestExpireRejectsPending(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, _ := f.createPending(t, level, domain.CreateParams{Gateway: "stripe"})

	_, err := f.svc.Expire(context.Background(), m.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestDisabledMembershipRejectsMutation(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{Gateway: "stripe"})
	if err := f.svc.Disable(context.Background(), m.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); !errors.Is(err, domain.ErrMembershipDisabled) {
		t.Fatalf("expected disabled error from activate, got %v", err)
	}
	if err := f.svc.Renew(context.Background(), m.ID); !errors.Is(err, domain.ErrMembershipDisabled) {
		t.Fatalf("expected disabled error from renew, got %v", err)
	}
}

func TestFailedBillingNoticeThrottle(t *testing.T) {
	f := setupFixture(t)
	level := f.insertLevel(t, monthlyLevel())
	m, paymentID := f.createPending(t, level, domain.CreateParams{
		Gateway:         "stripe",
		AutoRenew:       true,
		RecurringAmount: decimal.NewFromInt(50),
	})
	if _, err := f.svc.Activate(context.Background(), m.ID, paymentID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := f.svc.RecordFailedBilling(context.Background(), m.ID); err != nil {
		t.Fatalf("first notice: %v", err)
	}
	// Inside the cooldown nothing goes out.
	f.clk.Advance(time.Hour)
	if err := f.svc.RecordFailedBilling(context.Background(), m.ID); err != nil {
		t.Fatalf("throttled notice: %v", err)
	}
	if n := f.port.count(notification.KindRenewalPaymentFailed); n != 1 {
		t.Fatalf("notices inside cooldown = %d, want 1", n)
	}

	f.clk.Advance(21 * time.Hour)
	if err := f.svc.RecordFailedBilling(context.Background(), m.ID); err != nil {
		t.Fatalf("second notice: %v", err)
	}
	f.clk.Advance(21 * time.Hour)
	if err := f.svc.RecordFailedBilling(context.Background(), m.ID); err != nil {
		t.Fatalf("third notice: %v", err)
	}
	// The lifetime cap holds even after the cooldown passes.
	f.clk.Advance(21 * time.Hour)
	if err := f.svc.RecordFailedBilling(context.Background(), m.ID); err != nil {
		t.Fatalf("capped notice: %v", err)
	}
	if n := f.port.count(notification.KindRenewalPaymentFailed); n != 3 {
		t.Fatalf("total notices = %d, want 3", n)
	}
}
