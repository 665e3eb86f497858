// Package tax converts between GST-inclusive and GST-exclusive amounts.
//
// Every function rounds half-up to whole paise (two decimal places), which is
// the only rounding rule used for settlement math in the POS.
package tax

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)

	// DefaultRatePercent is applied to catalog entries that carry no rate.
	DefaultRatePercent = decimal.NewFromInt(18)
)

// Round rounds to two decimal places. Ties round away from zero, which is
// half-up for the non-negative amounts handled here.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

func factor(ratePercent decimal.Decimal) decimal.Decimal {
	if ratePercent.IsNegative() {
		ratePercent = decimal.Zero
	}
	return one.Add(ratePercent.Div(hundred))
}

// ExcludingTax strips the tax component out of an inclusive amount.
func ExcludingTax(inclusive, ratePercent decimal.Decimal) decimal.Decimal {
	return Round(inclusive.Div(factor(ratePercent)))
}

// IncludingTax adds tax on top of an exclusive amount.
func IncludingTax(exclusive, ratePercent decimal.Decimal) decimal.Decimal {
	return Round(exclusive.Mul(factor(ratePercent)))
}

// Portion returns the tax contained in an inclusive amount.
func Portion(inclusive, ratePercent decimal.Decimal) decimal.Decimal {
	return Round(inclusive).Sub(ExcludingTax(inclusive, ratePercent))
}

// On computes tax charged on an exclusive amount.
func On(exclusive, ratePercent decimal.Decimal) decimal.Decimal {
	if ratePercent.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return Round(exclusive.Mul(ratePercent).Div(hundred))
}

// SplitEqually halves a tax amount into its CGST and SGST components. The
// second half absorbs the odd paisa so the parts always add back up.
func SplitEqually(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	amount = Round(amount)
	half := Round(amount.Div(two))
	return half, amount.Sub(half)
}

// Breakdown is the reporting view of an inclusive amount.
type Breakdown struct {
	RatePercent decimal.Decimal `json:"rate_percent"`
	Inclusive   decimal.Decimal `json:"inclusive"`
	Exclusive   decimal.Decimal `json:"exclusive"`
	Tax         decimal.Decimal `json:"tax"`
	CGST        decimal.Decimal `json:"cgst"`
	SGST        decimal.Decimal `json:"sgst"`
}

// Break computes the full breakdown of an inclusive amount.
func Break(inclusive, ratePercent decimal.Decimal) Breakdown {
	exclusive := ExcludingTax(inclusive, ratePercent)
	taxAmount := Round(inclusive).Sub(exclusive)
	cgst, sgst := SplitEqually(taxAmount)
	return Breakdown{
		RatePercent: ratePercent,
		Inclusive:   Round(inclusive),
		Exclusive:   exclusive,
		Tax:         taxAmount,
		CGST:        cgst,
		SGST:        sgst,
	}
}
