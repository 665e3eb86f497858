package checkout

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.MustParse("en-IN"))

// formatAmount renders a rupee amount for cashier-facing messages.
func formatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return amountPrinter.Sprintf("₹%.2f", f)
}
