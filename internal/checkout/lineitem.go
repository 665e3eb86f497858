package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/checkout/tax"
)

// LineItem is one sellable unit in the cart.
//
// UnitPrice is GST-exclusive unless PriceIncludesTax is set. Discount is always
// entered GST-inclusive by the cashier and converted before it is subtracted.
type LineItem struct {
	ID               uuid.UUID       `json:"id"`
	Kind             catalog.Kind    `json:"kind"`
	CatalogID        uuid.UUID       `json:"catalog_id"`
	Name             string          `json:"name"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Quantity         int             `json:"quantity"`
	Discount         decimal.Decimal `json:"discount"`
	TaxRatePercent   decimal.Decimal `json:"tax_rate_percent"`
	PayVia           PayVia          `json:"pay_via"`
	PriceIncludesTax bool            `json:"price_includes_tax,omitempty"`
	StockQuantity    *int            `json:"stock_quantity,omitempty"`
}

// GrossTotal is unit price times quantity.
func (li LineItem) GrossTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// MaxDiscount is the GST-inclusive value of the line, the largest discount
// that can be given on it.
func (li LineItem) MaxDiscount() decimal.Decimal {
	if li.PriceIncludesTax {
		return tax.Round(li.GrossTotal())
	}
	return tax.IncludingTax(li.BaseExclusive(), li.TaxRatePercent)
}

func (li LineItem) clampedDiscount() decimal.Decimal {
	d := maxZero(li.Discount)
	if limit := li.MaxDiscount(); d.GreaterThan(limit) {
		return limit
	}
	return d
}

// DiscountExclusive is the discount with its GST component removed.
func (li LineItem) DiscountExclusive() decimal.Decimal {
	return tax.ExcludingTax(li.clampedDiscount(), li.TaxRatePercent)
}

// BaseExclusive is the pre-discount GST-exclusive value of the line.
func (li LineItem) BaseExclusive() decimal.Decimal {
	if li.PriceIncludesTax {
		return tax.ExcludingTax(li.GrossTotal(), li.TaxRatePercent)
	}
	return tax.Round(li.GrossTotal())
}

// NetSubtotal is the taxable value after discount, never below zero.
func (li LineItem) NetSubtotal() decimal.Decimal {
	return maxZero(li.BaseExclusive().Sub(li.DiscountExclusive()))
}

// SettledByMembership reports whether the line draws on membership balance.
func (li LineItem) SettledByMembership() bool {
	return li.Kind == catalog.KindService && li.PayVia == PayMembershipBalance
}

// TaxAmount is GST on the net subtotal. Membership-settled lines are exempt.
func (li LineItem) TaxAmount(applied bool) decimal.Decimal {
	if !applied || li.SettledByMembership() {
		return zero
	}
	return tax.On(li.NetSubtotal(), li.TaxRatePercent)
}

// LineTotal is net subtotal plus tax.
func (li LineItem) LineTotal(applied bool) decimal.Decimal {
	return li.NetSubtotal().Add(li.TaxAmount(applied))
}

func newLineItem(entry catalog.Entry, qty int) LineItem {
	rate := tax.DefaultRatePercent
	if entry.TaxRatePercent != nil && !entry.TaxRatePercent.IsNegative() {
		rate = *entry.TaxRatePercent
	}
	if entry.Kind == catalog.KindMembership {
		rate = membershipPurchaseRate
	}
	return LineItem{
		ID:               uuid.New(),
		Kind:             entry.Kind,
		CatalogID:        entry.ID,
		Name:             entry.Name,
		UnitPrice:        maxZero(entry.UnitPrice),
		Quantity:         qty,
		Discount:         zero,
		TaxRatePercent:   rate,
		PayVia:           PayStandard,
		PriceIncludesTax: entry.PriceIncludesTax && entry.Kind != catalog.KindMembership,
		StockQuantity:    entry.StockQuantity,
	}
}
