package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Unit describes how a discount amount is interpreted.
type Unit string

const (
	UnitFlat    Unit = "flat"
	UnitPercent Unit = "percent"
)

// Currencies whose minor unit is the whole unit. Amounts in these are
// always rounded to zero decimal places regardless of configuration.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {},
	"KMF": {}, "KRW": {}, "MGA": {}, "PYG": {}, "RWF": {},
	"UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// IsZeroDecimal reports whether the currency has no minor unit.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// Decimals resolves the rounding precision for a currency. configured is
// the service-wide decimal count for ordinary currencies.
func Decimals(currency string, configured int) int32 {
	if IsZeroDecimal(currency) {
		return 0
	}
	if configured < 0 {
		configured = 0
	}
	return int32(configured)
}

// Round rounds an amount to the currency's precision, half away from zero.
func Round(amount decimal.Decimal, currency string, configured int) decimal.Decimal {
	return amount.Round(Decimals(currency, configured))
}

// ApplyDiscount subtracts one discount from a running total. Percent
// discounts compound: they are taken from the already-discounted total,
// not from the original price. Sign is preserved, so a negative flat
// "discount" would increase the total and is the caller's bug to reject.
func ApplyDiscount(total decimal.Decimal, amount decimal.Decimal, unit Unit) decimal.Decimal {
	switch unit {
	case UnitPercent:
		return total.Sub(total.Mul(amount).Div(decimal.NewFromInt(100)))
	default:
		return total.Sub(amount)
	}
}

// FloorZero clamps a total at zero. Charges never go negative; credits
// larger than the balance are forfeited, not refunded.
func FloorZero(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
