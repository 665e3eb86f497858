package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/checkout/tax"
)

// Bucket sums the lines of one settlement category.
type Bucket struct {
	Count int             `json:"count"`
	Net   decimal.Decimal `json:"net"`
	Tax   decimal.Decimal `json:"tax"`
	Total decimal.Decimal `json:"total"`
}

func (b *Bucket) add(li LineItem, applied bool) {
	net := li.NetSubtotal()
	t := li.TaxAmount(applied)
	b.Count++
	b.Net = b.Net.Add(net)
	b.Tax = b.Tax.Add(t)
	b.Total = b.Total.Add(net).Add(t)
}

// OrderTotals is derived from the cart on every change and never stored on
// its own.
type OrderTotals struct {
	MembershipServices  Bucket `json:"membership_services"`
	Services            Bucket `json:"services"`
	Products            Bucket `json:"products"`
	MembershipPurchases Bucket `json:"membership_purchases"`

	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxTotal       decimal.Decimal `json:"tax_total"`
	CGST           decimal.Decimal `json:"cgst"`
	SGST           decimal.Decimal `json:"sgst"`
	GlobalDiscount decimal.Decimal `json:"global_discount"`

	MembershipPayable decimal.Decimal `json:"membership_payable"`
	RegularPayable    decimal.Decimal `json:"regular_payable"`
	PayableTotal      decimal.Decimal `json:"payable_total"`
}

// Aggregate partitions items into settlement buckets and computes the payable
// figures. The global discount only reduces the regular bucket.
func Aggregate(items []LineItem, settings TaxSettings, globalDiscount decimal.Decimal) OrderTotals {
	var t OrderTotals
	for _, li := range items {
		switch {
		case li.SettledByMembership():
			t.MembershipServices.add(li, false)
		case li.Kind == catalog.KindService:
			t.Services.add(li, settings.ServiceTax)
		case li.Kind == catalog.KindProduct:
			t.Products.add(li, settings.ProductTax)
		case li.Kind == catalog.KindMembership:
			t.MembershipPurchases.add(li, true)
		}
	}

	regularGross := t.Services.Total.Add(t.Products.Total).Add(t.MembershipPurchases.Total)
	discount := tax.Round(maxZero(globalDiscount))
	if discount.GreaterThan(regularGross) {
		discount = regularGross
	}

	t.GlobalDiscount = discount
	t.Subtotal = t.MembershipServices.Net.Add(t.Services.Net).Add(t.Products.Net).Add(t.MembershipPurchases.Net)
	t.TaxTotal = t.Services.Tax.Add(t.Products.Tax).Add(t.MembershipPurchases.Tax)
	t.CGST, t.SGST = tax.SplitEqually(t.TaxTotal)
	t.MembershipPayable = maxZero(t.MembershipServices.Total)
	t.RegularPayable = maxZero(regularGross.Sub(discount))
	t.PayableTotal = t.MembershipPayable.Add(t.RegularPayable)
	return t
}
