package registration

import (
	"github.com/shopspring/decimal"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/money"
)

// Type classifies what a registration does to the customer's standing.
type Type string

const (
	TypeNew       Type = "new"
	TypeRenewal   Type = "renewal"
	TypeUpgrade   Type = "upgrade"
	TypeDowngrade Type = "downgrade"
)

// AppliedDiscount is one validated code attached to a registration.
// Recurring discounts also participate in every renewal charge.
type AppliedDiscount struct {
	Code      string
	Amount    decimal.Decimal
	Unit      money.Unit
	Recurring bool
}

// Fee is a signed adjustment. Signup fees are positive, signup credits
// and proration credits negative. Proration fees are always one-time.
type Fee struct {
	Description string
	Amount      decimal.Decimal
	Recurring   bool
	Proration   bool
}

// Registration is the transient calculation context for one signup,
// renewal, upgrade, or downgrade. It is never persisted: it exists to
// compute totals and is discarded once a membership/payment pair exists.
type Registration struct {
	Level     leveldomain.MembershipLevel
	Type      Type
	Discounts []AppliedDiscount
	Fees      []Fee
	// CustomerTrialed mirrors the customer's has_trialed flag. A customer
	// who ever trialed any level is ineligible for every future trial.
	CustomerTrialed bool
}

// AddDiscount appends a validated discount.
func (r *Registration) AddDiscount(d AppliedDiscount) {
	r.Discounts = append(r.Discounts, d)
}

// AddFee appends a fee or credit.
func (r *Registration) AddFee(f Fee) {
	r.Fees = append(r.Fees, f)
}

func (r Registration) oneTimeFeeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.Fees {
		if !f.Recurring && !f.Proration {
			total = total.Add(f.Amount)
		}
	}
	return total
}

func (r Registration) prorationCreditTotal() decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.Fees {
		if f.Proration {
			total = total.Add(f.Amount)
		}
	}
	return total
}

func (r Registration) recurringFeeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.Fees {
		if f.Recurring && !f.Proration {
			total = total.Add(f.Amount)
		}
	}
	return total
}

// Totals is the calculator output: what is owed today and what each
// renewal will charge.
type Totals struct {
	Initial   decimal.Decimal
	Recurring decimal.Decimal
}
