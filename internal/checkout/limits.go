package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/checkout/tax"
)

// Limit bounds a single transaction on a rail. Zero means unbounded.
type Limit struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Limits keys transaction limits by rail.
type Limits map[Method]Limit

// DefaultLimits are the UPI and BNPL limits applied at the counter.
func DefaultLimits() Limits {
	return Limits{
		MethodUPI:  {Max: decimal.NewFromInt(100000)},
		MethodBNPL: {Min: decimal.NewFromInt(500), Max: decimal.NewFromInt(50000)},
	}
}

// Check returns a field error for every rail outside its limits.
func (l Limits) Check(a Allocation) []FieldError {
	var out []FieldError
	for _, m := range Methods {
		limit, ok := l[m]
		amount := a.Amount(m)
		if !ok || !amount.IsPositive() {
			continue
		}
		if limit.Max.IsPositive() && amount.GreaterThan(limit.Max) {
			out = append(out, FieldError{Method: m, Message: "Amount exceeds transaction limit of " + formatAmount(limit.Max), Code: CodeMethodLimit})
			continue
		}
		if limit.Min.IsPositive() && amount.LessThan(limit.Min) {
			out = append(out, FieldError{Method: m, Message: "Minimum amount is " + formatAmount(limit.Min), Code: CodeMethodLimit})
		}
	}
	return out
}

// FeeRates are card processing fees in percent. They are reported to the
// salon and never added to what the client pays.
var FeeRates = map[Method]decimal.Decimal{
	MethodCreditCard: decimal.RequireFromString("2.5"),
	MethodDebitCard:  decimal.RequireFromString("1.5"),
}

// ProcessingFee is the fee charged on amount paid through m.
func ProcessingFee(m Method, amount decimal.Decimal) decimal.Decimal {
	rate, ok := FeeRates[m]
	if !ok {
		return zero
	}
	return tax.On(maxZero(amount), rate)
}

// Suggest fills the bill rail by rail in the preferred order, respecting
// membership cap and transaction limits. Rails not in available are skipped.
func Suggest(t Terms, limits Limits, available []Method) Allocation {
	allowed := make(map[Method]bool, len(available))
	for _, m := range available {
		allowed[m] = true
	}
	next := NewAllocation()
	remaining := t.PayableTotal
	for _, m := range []Method{MethodMembership, MethodCash, MethodUPI, MethodDebitCard, MethodCreditCard, MethodBNPL} {
		if !allowed[m] || !remaining.IsPositive() {
			continue
		}
		take := remaining
		if m == MethodMembership {
			take = decimal.Min(take, t.MembershipCap())
		}
		if limit, ok := limits[m]; ok {
			if limit.Min.IsPositive() && remaining.LessThan(limit.Min) {
				continue
			}
			if limit.Max.IsPositive() {
				take = decimal.Min(take, limit.Max)
			}
		}
		if take.IsPositive() {
			next.Amounts[m] = take
			remaining = remaining.Sub(take)
		}
	}
	holders := next.NonZero()
	next.Split = len(holders) > 1
	if len(holders) > 0 {
		next.Primary = holders[0]
		if holders[0] == MethodMembership && len(holders) > 1 {
			next.Primary = holders[1]
		}
	}
	return next
}

var referencePrefixes = map[Method]string{
	MethodUPI:        "UPI",
	MethodCreditCard: "CC",
	MethodDebitCard:  "DC",
	MethodCash:       "CASH",
	MethodBNPL:       "BNPL",
	MethodMembership: "MEM",
}

// TransactionReference builds a settlement reference such as UPI1760688000A1B2C3.
func TransactionReference(m Method, at time.Time) string {
	prefix, ok := referencePrefixes[m]
	if !ok {
		prefix = "PAY"
	}
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s%d%s", prefix, at.UnixMilli(), random)
}

// SettlementLine is one rail of a settled order.
type SettlementLine struct {
	Method        Method          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	Reference     string          `json:"reference"`
}

// Receipt summarises how an order was paid.
type Receipt struct {
	OrderID        uuid.UUID        `json:"order_id"`
	OrderNumber    string           `json:"order_number"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	Payments       []SettlementLine `json:"payments"`
	ProcessingFees decimal.Decimal  `json:"processing_fees"`
	IssuedAt       time.Time        `json:"issued_at"`
}

// settle turns the allocation into settlement lines.
func settle(a Allocation, at time.Time) ([]SettlementLine, decimal.Decimal) {
	var (
		lines []SettlementLine
		fees  = zero
	)
	for _, m := range a.NonZero() {
		fee := ProcessingFee(m, a.Amount(m))
		fees = fees.Add(fee)
		lines = append(lines, SettlementLine{
			Method:        m,
			Amount:        a.Amount(m),
			ProcessingFee: fee,
			Reference:     TransactionReference(m, at),
		})
	}
	return lines, fees
}
