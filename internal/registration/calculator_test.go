package registration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	"github.com/stellarwp/restrict-content-sub000/internal/gateway"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/money"
	"go.uber.org/zap"
)

func newTestCalculator(billing config.Billing, at time.Time) *Calculator {
	return &Calculator{
		billing:  billing,
		clk:      clock.Fixed{At: at},
		gateways: gateway.NewRegistry(gateway.Defaults()...),
		log:      zap.NewNop(),
	}
}

func usdBilling() config.Billing {
	return config.Billing{Currency: "USD", CurrencyDecimals: 2}
}

func monthlyLevel(price int64) leveldomain.MembershipLevel {
	return leveldomain.MembershipLevel{
		Name:         "Gold",
		Price:        decimal.NewFromInt(price),
		Duration:     1,
		DurationUnit: leveldomain.DurationUnitMonth,
	}
}

func TestTotalsEndToEnd(t *testing.T) {
	// $50 level, $5 signup fee, SAVE10 = 10% recurring discount,
	// discount-fees-too off: discount hits the base only, so today is
	// (50 - 5) + 5 = 50.00 and renewals are 45.00.
	calc := newTestCalculator(usdBilling(), time.Now())

	reg := Registration{Level: monthlyLevel(50), Type: TypeNew}
	reg.AddDiscount(AppliedDiscount{Code: "save10", Amount: decimal.NewFromInt(10), Unit: money.UnitPercent, Recurring: true})
	reg.AddFee(Fee{Description: "Signup Fee", Amount: decimal.NewFromInt(5)})

	totals := calc.Totals(reg)
	if totals.Initial.String() != "50" && totals.Initial.String() != "50.00" {
		t.Fatalf("expected initial 50.00, got %s", totals.Initial)
	}
	if !totals.Recurring.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("expected recurring 45.00, got %s", totals.Recurring)
	}
}

func TestDiscountFeesTooSwapsOrder(t *testing.T) {
	billing := usdBilling()
	billing.DiscountFeesToo = true
	calc := newTestCalculator(billing, time.Now())

	reg := Registration{Level: monthlyLevel(50), Type: TypeNew}
	reg.AddDiscount(AppliedDiscount{Code: "save10", Amount: decimal.NewFromInt(10), Unit: money.UnitPercent})
	reg.AddFee(Fee{Description: "Signup Fee", Amount: decimal.NewFromInt(5)})

	totals := calc.Totals(reg)
	// (50 + 5) × 0.9 = 49.50 when fees are discounted too.
	if !totals.Initial.Equal(decimal.RequireFromString("49.5")) {
		t.Fatalf("expected initial 49.50, got %s", totals.Initial)
	}
}

func TestDiscountsCompoundSequentially(t *testing.T) {
	calc := newTestCalculator(usdBilling(), time.Now())

	reg := Registration{Level: monthlyLevel(100), Type: TypeNew}
	reg.AddDiscount(AppliedDiscount{Code: "a", Amount: decimal.NewFromInt(10), Unit: money.UnitPercent})
	reg.AddDiscount(AppliedDiscount{Code: "b", Amount: decimal.NewFromInt(10), Unit: money.UnitPercent})

	totals := calc.Totals(reg)
	if !totals.Initial.Equal(decimal.NewFromInt(81)) {
		t.Fatalf("expected compounded 81, got %s", totals.Initial)
	}
}

func TestZeroDecimalCurrencyRounding(t *testing.T) {
	billing := config.Billing{Currency: "JPY", CurrencyDecimals: 2}
	calc := newTestCalculator(billing, time.Now())

	reg := Registration{Level: monthlyLevel(1000), Type: TypeNew}
	reg.AddDiscount(AppliedDiscount{Code: "save15", Amount: decimal.NewFromInt(15), Unit: money.UnitPercent})

	totals := calc.Totals(reg)
	if totals.Initial.String() != "850" {
		t.Fatalf("expected 850 with no decimals, got %s", totals.Initial)
	}
}

func TestTrialEligibilityIsCustomerScoped(t *testing.T) {
	calc := newTestCalculator(usdBilling(), time.Now())

	level := monthlyLevel(30)
	level.TrialDuration = 14
	level.TrialDurationUnit = leveldomain.DurationUnitDay

	fresh := Registration{Level: level, Type: TypeNew}
	if got := calc.Totals(fresh).Initial; !got.IsZero() {
		t.Fatalf("expected trial to zero the first charge, got %s", got)
	}

	// A customer who trialed some other level pays full price here.
	trialed := Registration{Level: level, Type: TypeNew, CustomerTrialed: true}
	if got := calc.Totals(trialed).Initial; !got.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected full price for previously-trialed customer, got %s", got)
	}
}

func TestFlooredAtZero(t *testing.T) {
	calc := newTestCalculator(usdBilling(), time.Now())

	reg := Registration{Level: monthlyLevel(10), Type: TypeUpgrade}
	reg.AddFee(Fee{Description: "Proration", Amount: decimal.NewFromInt(-50), Proration: true})

	totals := calc.Totals(reg)
	if !totals.Initial.IsZero() {
		t.Fatalf("expected credit floored at zero, got %s", totals.Initial)
	}
}

func TestProrationCreditNeverPositive(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	calc := newTestCalculator(usdBilling(), now)

	prev := monthlyLevel(30)
	exp := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	credit := calc.ProrationCredit(prev, &exp)
	if credit.IsPositive() {
		t.Fatalf("expected non-positive credit, got %s", credit)
	}
	if credit.Neg().GreaterThan(prev.Price) {
		t.Fatalf("expected credit capped at cycle price, got %s", credit)
	}
	if credit.IsZero() {
		t.Fatalf("expected non-zero credit for half-used cycle")
	}
}

func TestProrationCreditZeroOnRenewalDay(t *testing.T) {
	now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	calc := newTestCalculator(usdBilling(), now)

	prev := monthlyLevel(30)
	exp := now
	if credit := calc.ProrationCredit(prev, &exp); !credit.IsZero() {
		t.Fatalf("expected zero credit on the renewal day, got %s", credit)
	}

	past := now.AddDate(0, 0, -5)
	if credit := calc.ProrationCredit(prev, &past); !credit.IsZero() {
		t.Fatalf("expected zero credit past expiration, got %s", credit)
	}
}

func TestProrationCreditWholeDays(t *testing.T) {
	// 15 of 30 days left on a $30 30-day level is exactly $15.
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	calc := newTestCalculator(usdBilling(), now)

	prev := leveldomain.MembershipLevel{
		Price:        decimal.NewFromInt(30),
		Duration:     30,
		DurationUnit: leveldomain.DurationUnitDay,
	}
	exp := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	credit := calc.ProrationCredit(prev, &exp)
	if !credit.Equal(decimal.NewFromInt(-15)) {
		t.Fatalf("expected -15.00, got %s", credit)
	}
}

func TestAutoRenewDisabledWithoutTrialSupport(t *testing.T) {
	calc := newTestCalculator(usdBilling(), time.Now())

	level := monthlyLevel(20)
	level.TrialDuration = 7
	level.TrialDurationUnit = leveldomain.DurationUnitDay
	reg := Registration{Level: level, Type: TypeNew}

	totals := calc.Totals(reg)
	if !totals.Initial.IsZero() {
		t.Fatalf("expected $0 today for trial, got %s", totals.Initial)
	}

	// PayPal recurs but cannot hold a card without charging it.
	if calc.AutoRenewAllowed(reg, "paypal", totals, true) {
		t.Fatalf("expected auto-renew forced off on $0-today without trial capability")
	}
	if !calc.AutoRenewAllowed(reg, "stripe", totals, true) {
		t.Fatalf("expected auto-renew allowed on a trial-capable gateway")
	}
	if calc.AutoRenewAllowed(reg, "manual", totals, true) {
		t.Fatalf("expected auto-renew off for the manual gateway")
	}
}

func TestAutoRenewDisabledForLifetimeAndFree(t *testing.T) {
	calc := newTestCalculator(usdBilling(), time.Now())

	lifetime := Registration{Level: leveldomain.MembershipLevel{
		Price:        decimal.NewFromInt(200),
		DurationUnit: leveldomain.DurationUnitNever,
	}}
	if calc.AutoRenewAllowed(lifetime, "stripe", calc.Totals(lifetime), true) {
		t.Fatalf("expected auto-renew off for lifetime level")
	}

	free := Registration{Level: leveldomain.MembershipLevel{
		Price:        decimal.Zero,
		Duration:     1,
		DurationUnit: leveldomain.DurationUnitMonth,
	}}
	if calc.AutoRenewAllowed(free, "stripe", calc.Totals(free), true) {
		t.Fatalf("expected auto-renew off for free level")
	}
}

func TestRecurringTotalIgnoresOneTimeAdjustments(t *testing.T) {
	calc := newTestCalculator(usdBilling(), time.Now())

	reg := Registration{Level: monthlyLevel(40), Type: TypeUpgrade}
	reg.AddDiscount(AppliedDiscount{Code: "once", Amount: decimal.NewFromInt(50), Unit: money.UnitPercent, Recurring: false})
	reg.AddFee(Fee{Description: "Signup Fee", Amount: decimal.NewFromInt(10)})
	reg.AddFee(Fee{Description: "Proration", Amount: decimal.NewFromInt(-20), Proration: true})
	reg.AddFee(Fee{Description: "Addon", Amount: decimal.NewFromInt(3), Recurring: true})

	totals := calc.Totals(reg)
	// Initial: (40 × 0.5) + 10 − 20 = 10. Recurring: 40 + 3 = 43.
	if !totals.Initial.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected initial 10, got %s", totals.Initial)
	}
	if !totals.Recurring.Equal(decimal.NewFromInt(43)) {
		t.Fatalf("expected recurring 43, got %s", totals.Recurring)
	}
}
