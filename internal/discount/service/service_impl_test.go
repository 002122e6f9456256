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
	discountdomain "github.com/stellarwp/restrict-content-sub000/internal/discount/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/money"
	paymentdomain "github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
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

var fixtureSeq atomic.Int64

type fixture struct {
	db    *gorm.DB
	clk   *testClock
	svc   discountdomain.Service
	genID *snowflake.Node
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:discount_test_%d?mode=memory&cache=shared", fixtureSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&discountdomain.DiscountCode{}, &paymentdomain.Payment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	genID, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := &testClock{at: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Clock: clk})

	return &fixture{db: db, clk: clk, svc: svc, genID: genID}
}

func (f *fixture) insertCode(t *testing.T, code *discountdomain.DiscountCode) *discountdomain.DiscountCode {
	t.Helper()
	if code.ID == 0 {
		code.ID = f.genID.Generate()
	}
	if err := f.db.Create(code).Error; err != nil {
		t.Fatalf("insert code: %v", err)
	}
	return code
}

func TestValidateMatchesCaseInsensitively(t *testing.T) {
	f := setupFixture(t)
	f.insertCode(t, &discountdomain.DiscountCode{
		Code:   "save10",
		Amount: decimal.NewFromInt(10),
		Unit:   money.UnitPercent,
	})

	row, err := f.svc.Validate(context.Background(), "  SAVE10 ", 0, 0)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if row.Code != "save10" {
		t.Fatalf("code = %q, want save10", row.Code)
	}

	if _, err := f.svc.Validate(context.Background(), "nope", 0, 0); !errors.Is(err, discountdomain.ErrCodeNotFound) {
		t.Fatalf("err = %v, want ErrCodeNotFound", err)
	}
}

func TestValidateRejectsDisabledExpiredExhausted(t *testing.T) {
	f := setupFixture(t)
	f.insertCode(t, &discountdomain.DiscountCode{
		Code:     "off",
		Amount:   decimal.NewFromInt(5),
		Unit:     money.UnitFlat,
		Disabled: true,
	})
	expiresAt := f.clk.Now().Add(-time.Hour)
	f.insertCode(t, &discountdomain.DiscountCode{
		Code:      "stale",
		Amount:    decimal.NewFromInt(5),
		Unit:      money.UnitFlat,
		ExpiresAt: &expiresAt,
	})
	f.insertCode(t, &discountdomain.DiscountCode{
		Code:     "spent",
		Amount:   decimal.NewFromInt(5),
		Unit:     money.UnitFlat,
		MaxUses:  2,
		UseCount: 2,
	})

	ctx := context.Background()
	if _, err := f.svc.Validate(ctx, "off", 0, 0); !errors.Is(err, discountdomain.ErrCodeDisabled) {
		t.Fatalf("disabled err = %v", err)
	}
	if _, err := f.svc.Validate(ctx, "stale", 0, 0); !errors.Is(err, discountdomain.ErrCodeExpired) {
		t.Fatalf("expired err = %v", err)
	}
	if _, err := f.svc.Validate(ctx, "spent", 0, 0); !errors.Is(err, discountdomain.ErrCodeExhausted) {
		t.Fatalf("exhausted err = %v", err)
	}
}

func TestValidateExpiryUsesInjectedClock(t *testing.T) {
	f := setupFixture(t)
	expiresAt := f.clk.Now().Add(24 * time.Hour)
	f.insertCode(t, &discountdomain.DiscountCode{
		Code:      "flash",
		Amount:    decimal.NewFromInt(20),
		Unit:      money.UnitPercent,
		ExpiresAt: &expiresAt,
	})

	ctx := context.Background()
	if _, err := f.svc.Validate(ctx, "flash", 0, 0); err != nil {
		t.Fatalf("validate before expiry: %v", err)
	}

	f.clk.Advance(48 * time.Hour)
	if _, err := f.svc.Validate(ctx, "flash", 0, 0); !errors.Is(err, discountdomain.ErrCodeExpired) {
		t.Fatalf("err after expiry = %v, want ErrCodeExpired", err)
	}
}

func TestValidateHonorsLevelScope(t *testing.T) {
	f := setupFixture(t)
	inScope := f.genID.Generate()
	outOfScope := f.genID.Generate()
	f.insertCode(t, &discountdomain.DiscountCode{
		Code:       "gold-only",
		Amount:     decimal.NewFromInt(15),
		Unit:       money.UnitPercent,
		LevelScope: []snowflake.ID{inScope},
	})

	ctx := context.Background()
	if _, err := f.svc.Validate(ctx, "gold-only", inScope, 0); err != nil {
		t.Fatalf("in-scope validate: %v", err)
	}
	if _, err := f.svc.Validate(ctx, "gold-only", outOfScope, 0); !errors.Is(err, discountdomain.ErrCodeNotApplicable) {
		t.Fatalf("out-of-scope err = %v, want ErrCodeNotApplicable", err)
	}
}

func TestOneTimeCodeBlocksRepeatCustomer(t *testing.T) {
	f := setupFixture(t)
	code := f.insertCode(t, &discountdomain.DiscountCode{
		Code:    "once",
		Amount:  decimal.NewFromInt(50),
		Unit:    money.UnitPercent,
		OneTime: true,
	})
	customerID := f.genID.Generate()

	ctx := context.Background()
	if _, err := f.svc.Validate(ctx, "once", 0, customerID); err != nil {
		t.Fatalf("first validate: %v", err)
	}

	// A pending attempt does not consume the code.
	pending := &paymentdomain.Payment{
		ID:           f.genID.Generate(),
		CustomerID:   customerID,
		MembershipID: f.genID.Generate(),
		LevelID:      f.genID.Generate(),
		Status:       paymentdomain.StatusPending,
		DiscountCode: code.Code,
	}
	if err := f.db.Create(pending).Error; err != nil {
		t.Fatalf("insert pending payment: %v", err)
	}
	if _, err := f.svc.Validate(ctx, "once", 0, customerID); err != nil {
		t.Fatalf("validate with pending attempt: %v", err)
	}

	if err := f.db.Model(pending).Update("status", paymentdomain.StatusComplete).Error; err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if _, err := f.svc.Validate(ctx, "once", 0, customerID); !errors.Is(err, discountdomain.ErrCodeAlreadyUsed) {
		t.Fatalf("err = %v, want ErrCodeAlreadyUsed", err)
	}

	// Another customer is unaffected.
	if _, err := f.svc.Validate(ctx, "once", 0, f.genID.Generate()); err != nil {
		t.Fatalf("other customer validate: %v", err)
	}
}

func TestIncrementUsageCounts(t *testing.T) {
	f := setupFixture(t)
	code := f.insertCode(t, &discountdomain.DiscountCode{
		Code:    "tally",
		Amount:  decimal.NewFromInt(5),
		Unit:    money.UnitFlat,
		MaxUses: 2,
	})

	ctx := context.Background()
	if err := f.svc.IncrementUsage(ctx, nil, code.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := f.svc.IncrementUsage(ctx, nil, code.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	if _, err := f.svc.Validate(ctx, "tally", 0, 0); !errors.Is(err, discountdomain.ErrCodeExhausted) {
		t.Fatalf("err = %v, want ErrCodeExhausted", err)
	}
}
