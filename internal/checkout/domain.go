package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Method is a payment rail accepted at the counter.
type Method string

const (
	MethodCash       Method = "cash"
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodUPI        Method = "upi"
	MethodBNPL       Method = "bnpl"
	MethodMembership Method = "membership"
)

// Methods lists every rail in tie-break order.
var Methods = []Method{MethodCash, MethodCreditCard, MethodDebitCard, MethodUPI, MethodBNPL, MethodMembership}

// Valid reports whether m is a known rail.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMethod validates a method name.
func ParseMethod(raw string) (Method, error) {
	m := Method(raw)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
	}
	return m, nil
}

// PayVia selects how a service line is settled.
type PayVia string

const (
	PayStandard          PayVia = "standard"
	PayMembershipBalance PayVia = "membership_balance"
)

// TaxSettings are the counter-level GST switches.
type TaxSettings struct {
	ProductTax bool `json:"product_tax"`
	ServiceTax bool `json:"service_tax"`
}

// DefaultTaxSettings charges GST on both categories.
func DefaultTaxSettings() TaxSettings {
	return TaxSettings{ProductTax: true, ServiceTax: true}
}

var (
	zero = decimal.Zero
	// epsilon is the reconciliation tolerance of one paisa.
	epsilon = decimal.New(1, -2)
	// membershipPurchaseRate is charged on membership sales regardless of toggles.
	membershipPurchaseRate = decimal.NewFromInt(18)
)

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
