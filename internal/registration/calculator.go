package registration

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	"github.com/stellarwp/restrict-content-sub000/internal/gateway"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config   config.Config
	Clock    clock.Clock
	Gateways *gateway.Registry
	Log      *zap.Logger
}

// Calculator turns a Registration into the amount due today and the
// amount each renewal will charge. It is pure over its inputs plus the
// injected billing policy and clock.
type Calculator struct {
	billing  config.Billing
	clk      clock.Clock
	gateways *gateway.Registry
	log      *zap.Logger
}

func NewCalculator(p Params) *Calculator {
	return &Calculator{
		billing:  p.Config.Billing,
		clk:      p.Clock,
		gateways: p.Gateways,
		log:      p.Log.Named("registration.calculator"),
	}
}

// TrialEligible reports whether this registration defers its first
// charge. The level must offer a trial AND the customer must never have
// trialed before, on any level.
func (c *Calculator) TrialEligible(reg Registration) bool {
	return reg.Level.HasTrial() && !reg.CustomerTrialed && reg.Type == TypeNew
}

// Totals computes the initial and recurring totals for a registration.
//
// Initial, in order: trial short-circuits to zero; otherwise start from
// the level price, apply discounts (before fees by default, after fees
// when the discount-fees-too policy is on, flooring at zero each stage),
// add one-time fees and proration credits, floor, and round to the
// currency's precision. Each discount applies against the running,
// already-discounted total, so two 10% codes take 19%, not 20%.
//
// Recurring mirrors the same order but only recurring-flagged discounts
// and fees participate, proration credits never do, and lifetime levels
// always recur at zero.
func (c *Calculator) Totals(reg Registration) Totals {
	return Totals{
		Initial:   c.initialTotal(reg),
		Recurring: c.recurringTotal(reg),
	}
}

func (c *Calculator) initialTotal(reg Registration) decimal.Decimal {
	if c.TrialEligible(reg) {
		return c.round(decimal.Zero)
	}

	running := reg.Level.Price
	if !c.billing.DiscountFeesToo {
		running = c.applyDiscounts(running, reg.Discounts, false)
	}

	running = running.Add(reg.oneTimeFeeTotal())
	running = running.Add(reg.prorationCreditTotal())
	running = money.FloorZero(running)

	if c.billing.DiscountFeesToo {
		running = c.applyDiscounts(running, reg.Discounts, false)
	}

	return c.round(running)
}

func (c *Calculator) recurringTotal(reg Registration) decimal.Decimal {
	if reg.Level.IsLifetime() {
		return c.round(decimal.Zero)
	}

	running := reg.Level.Price
	if !c.billing.DiscountFeesToo {
		running = c.applyDiscounts(running, reg.Discounts, true)
	}

	running = running.Add(reg.recurringFeeTotal())
	running = money.FloorZero(running)

	if c.billing.DiscountFeesToo {
		running = c.applyDiscounts(running, reg.Discounts, true)
	}

	return c.round(running)
}

// applyDiscounts folds each code into the running total sequentially.
// Compounding is deliberate and load-bearing: it changes the numeric
// outcome versus summing percentages, and existing ledgers depend on it.
func (c *Calculator) applyDiscounts(total decimal.Decimal, discounts []AppliedDiscount, recurringOnly bool) decimal.Decimal {
	for _, d := range discounts {
		if recurringOnly && !d.Recurring {
			continue
		}
		total = money.ApplyDiscount(total, d.Amount, d.Unit)
		total = money.FloorZero(total)
	}
	return total
}

// ProrationCredit values the unused remainder of the previous billing
// cycle when upgrading or downgrading. Whole-day granularity: the credit
// is price × days-remaining / cycle-days. The result is never positive
// and never exceeds the previous cycle's price; on or past the renewal
// day it is zero.
func (c *Calculator) ProrationCredit(prev leveldomain.MembershipLevel, expiration *time.Time) decimal.Decimal {
	if expiration == nil || prev.IsLifetime() || prev.IsFree() {
		return decimal.Zero
	}
	now := c.clk.Now()
	remaining := expiration.Sub(now)
	if remaining <= 0 {
		return decimal.Zero
	}

	daysRemaining := int(remaining.Hours() / 24)
	if remaining.Hours() > float64(daysRemaining*24) {
		daysRemaining++
	}
	cycleDays := prev.CycleDays(*expiration)
	if daysRemaining > cycleDays {
		daysRemaining = cycleDays
	}

	credit := prev.Price.
		Mul(decimal.NewFromInt(int64(daysRemaining))).
		Div(decimal.NewFromInt(int64(cycleDays)))
	credit = c.round(credit)
	if credit.GreaterThan(prev.Price) {
		credit = prev.Price
	}
	return credit.Neg()
}

// AutoRenewAllowed decides whether recurring billing may be armed for
// this registration. requested carries the registrant's preference (or
// the configured default).
func (c *Calculator) AutoRenewAllowed(reg Registration, gatewayID string, totals Totals, requested bool) bool {
	if !requested {
		return false
	}
	if reg.Level.IsLifetime() || reg.Level.IsFree() {
		return false
	}
	if !c.gateways.Supports(gatewayID, gateway.CapabilityRecurring) {
		return false
	}
	// A $0-today subscription needs the gateway to hold a payment method
	// without charging it, which is what the trial capability means.
	if totals.Initial.IsZero() && !c.gateways.Supports(gatewayID, gateway.CapabilityTrial) {
		return false
	}
	return true
}

// ChargeRequest assembles the flat structure an external gateway adapter
// needs to execute the charge.
func (c *Calculator) ChargeRequest(
	reg Registration,
	totals Totals,
	gatewayID, subscriptionKey string,
	userID int64,
	email string,
	autoRenew bool,
) gateway.ChargeRequest {
	discountTotal := reg.Level.Price.Sub(c.applyDiscounts(reg.Level.Price, reg.Discounts, false))
	trialDuration := 0
	trialUnit := ""
	if c.TrialEligible(reg) {
		trialDuration = reg.Level.TrialDuration
		trialUnit = string(reg.Level.TrialDurationUnit)
	}
	return gateway.ChargeRequest{
		GatewayID:         gatewayID,
		SubscriptionKey:   subscriptionKey,
		UserID:            userID,
		Email:             email,
		Currency:          c.billing.Currency,
		InitialAmount:     totals.Initial,
		RecurringAmount:   totals.Recurring,
		DiscountAmount:    c.round(discountTotal),
		FeeAmount:         c.round(reg.oneTimeFeeTotal()),
		Duration:          reg.Level.Duration,
		DurationUnit:      string(reg.Level.DurationUnit),
		TrialDuration:     trialDuration,
		TrialDurationUnit: trialUnit,
		AutoRenew:         autoRenew,
		StartDate:         c.clk.Now(),
	}
}

func (c *Calculator) round(amount decimal.Decimal) decimal.Decimal {
	return money.Round(amount, c.billing.Currency, c.billing.CurrencyDecimals)
}
