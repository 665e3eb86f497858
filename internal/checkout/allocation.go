package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/checkout/tax"
)

// Terms are the figures an allocation is evaluated against.
type Terms struct {
	PayableTotal      decimal.Decimal `json:"payable_total"`
	MembershipPayable decimal.Decimal `json:"membership_payable"`
	// MembershipBalance is the usable balance; zero without an active account.
	MembershipBalance decimal.Decimal `json:"membership_balance"`
}

// NewTerms derives terms from totals and the client's usable balance.
func NewTerms(totals OrderTotals, usableBalance decimal.Decimal) Terms {
	return Terms{
		PayableTotal:      totals.PayableTotal,
		MembershipPayable: totals.MembershipPayable,
		MembershipBalance: maxZero(usableBalance),
	}
}

// MembershipCap is the most the membership rail may carry.
func (t Terms) MembershipCap() decimal.Decimal {
	return maxZero(decimal.Min(t.MembershipBalance, t.MembershipPayable))
}

// ClientToPay is what remains for the standard rails once membership is used.
func (t Terms) ClientToPay() decimal.Decimal {
	return maxZero(t.PayableTotal.Sub(t.MembershipCap()))
}

// RequiresSplit reports whether settlement needs both membership balance and
// a standard rail.
func (t Terms) RequiresSplit() bool {
	return t.MembershipCap().IsPositive() && t.ClientToPay().IsPositive()
}

// Allocation maps every payment rail to the amount it carries. Transitions
// return a new Allocation and never mutate the receiver.
type Allocation struct {
	Amounts     map[Method]decimal.Decimal `json:"amounts"`
	Split       bool                       `json:"split"`
	Primary     Method                     `json:"primary"`
	FieldErrors map[Method]FieldError      `json:"field_errors,omitempty"`
}

// NewAllocation returns an all-zero single-mode allocation on cash.
func NewAllocation() Allocation {
	a := Allocation{
		Amounts:     make(map[Method]decimal.Decimal, len(Methods)),
		Primary:     MethodCash,
		FieldErrors: map[Method]FieldError{},
	}
	for _, m := range Methods {
		a.Amounts[m] = zero
	}
	return a
}

func (a Allocation) clone() Allocation {
	next := NewAllocation()
	for m, v := range a.Amounts {
		next.Amounts[m] = v
	}
	for m, fe := range a.FieldErrors {
		next.FieldErrors[m] = fe
	}
	next.Split = a.Split
	if a.Primary.Valid() {
		next.Primary = a.Primary
	}
	return next
}

// Amount returns the amount on m.
func (a Allocation) Amount(m Method) decimal.Decimal {
	if v, ok := a.Amounts[m]; ok {
		return v
	}
	return zero
}

// Sum adds every rail.
func (a Allocation) Sum() decimal.Decimal {
	total := zero
	for _, m := range Methods {
		total = total.Add(a.Amount(m))
	}
	return total
}

// NonZero lists the rails carrying an amount, in tie-break order.
func (a Allocation) NonZero() []Method {
	var out []Method
	for _, m := range Methods {
		if a.Amount(m).IsPositive() {
			out = append(out, m)
		}
	}
	return out
}

func (a Allocation) holdsOtherThan(m Method) bool {
	for _, other := range Methods {
		if other != m && a.Amount(other).IsPositive() {
			return true
		}
	}
	return false
}

// checkOverflow records or clears the overflow error for m.
func (a *Allocation) checkOverflow(t Terms, m Method) {
	delete(a.FieldErrors, m)
	if !a.Split || !a.Amount(m).IsPositive() {
		return
	}
	sum := a.Sum()
	if !sum.GreaterThan(t.PayableTotal) {
		return
	}
	others := sum.Sub(a.Amount(m))
	remaining := maxZero(t.PayableTotal.Sub(others))
	a.FieldErrors[m] = FieldError{
		Method:  m,
		Message: "Amount exceeds remaining balance of " + formatAmount(remaining),
		Code:    CodeExceedsRemaining,
	}
}

// recheckOverflows re-evaluates m and every rail already flagged as
// overflowing, so an error clears once its rail fits again.
func (a *Allocation) recheckOverflows(t Terms, m Method) {
	flagged := make([]Method, 0, len(a.FieldErrors))
	for other, fe := range a.FieldErrors {
		if other != m && fe.Code == CodeExceedsRemaining {
			flagged = append(flagged, other)
		}
	}
	for _, other := range flagged {
		a.checkOverflow(t, other)
	}
	a.checkOverflow(t, m)
}

func membershipCapError(t Terms) *FieldError {
	return &FieldError{
		Method:  MethodMembership,
		Message: "Amount exceeds membership limit of " + formatAmount(t.MembershipCap()),
		Code:    CodeMembershipCap,
	}
}

// SetAmount records amount on m.
//
// In single mode the amount is capped at the payable total and every other
// rail is zeroed, unless another rail already carries a partial amount, in
// which case the allocation moves to split mode. In split mode the amount is
// stored as entered and an overshoot is reported as a field error; entering
// the full total on one rail returns to single mode.
func (a Allocation) SetAmount(t Terms, m Method, amount decimal.Decimal) (Allocation, error) {
	if !m.Valid() {
		return a, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
	amount = tax.Round(maxZero(amount))
	if m == MethodMembership && amount.GreaterThan(t.MembershipCap()) {
		return a, membershipCapError(t)
	}

	next := a.clone()
	payable := t.PayableTotal
	switch {
	case !next.Split:
		if amount.IsPositive() && amount.LessThan(payable) && next.holdsOtherThan(m) {
			next.Split = true
			next.Amounts[m] = amount
			break
		}
		next.collapseTo(m, decimal.Min(amount, payable))
	case amount.IsPositive() && amount.GreaterThanOrEqual(payable) && !t.RequiresSplit():
		next.collapseTo(m, payable)
	default:
		next.Amounts[m] = amount
	}
	next.recheckOverflows(t, m)
	return next, nil
}

// FillRemaining puts whatever is still unpaid on m.
func (a Allocation) FillRemaining(t Terms, m Method) (Allocation, error) {
	if !m.Valid() {
		return a, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
	others := a.Sum().Sub(a.Amount(m))
	rest := maxZero(t.PayableTotal.Sub(others))
	if m == MethodMembership {
		rest = decimal.Min(rest, t.MembershipCap())
	}

	next := a.clone()
	switch {
	case next.Split:
		next.Amounts[m] = rest
	case next.holdsOtherThan(m):
		if rest.IsPositive() {
			next.Split = true
			next.Amounts[m] = rest
		}
	default:
		next.collapseTo(m, rest)
	}
	next.recheckOverflows(t, m)
	return next, nil
}

// DistributeEqually splits what the standard rails owe across methods in
// whole currency units. The first method takes the remainder so the parts add
// up exactly. A reconciled membership amount is kept in split mode.
func (a Allocation) DistributeEqually(t Terms, methods []Method) (Allocation, error) {
	targets := make([]Method, 0, len(methods))
	seen := make(map[Method]bool, len(methods))
	for _, m := range methods {
		if !m.Valid() {
			return a, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
		}
		if m == MethodMembership {
			return a, ErrNotDistributable
		}
		if !seen[m] {
			seen[m] = true
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		return a, ErrNoMethods
	}

	kept := zero
	if a.Split {
		kept = decimal.Min(a.Amount(MethodMembership), t.MembershipCap())
	}
	base := maxZero(t.PayableTotal.Sub(kept))
	n := decimal.NewFromInt(int64(len(targets)))
	share := base.Div(n).Floor()
	remainder := base.Sub(share.Mul(n))

	next := a.clone()
	for _, m := range Methods {
		next.Amounts[m] = zero
	}
	for i, m := range targets {
		if i == 0 {
			next.Amounts[m] = share.Add(remainder)
			continue
		}
		next.Amounts[m] = share
	}
	next.Amounts[MethodMembership] = kept
	next.FieldErrors = map[Method]FieldError{}
	next.Primary = targets[0]
	next.Split = len(targets) > 1 || kept.IsPositive()
	return next, nil
}

// ClearAll zeroes every rail and drops field errors. The mode is kept.
func (a Allocation) ClearAll() Allocation {
	next := a.clone()
	for _, m := range Methods {
		next.Amounts[m] = zero
	}
	next.FieldErrors = map[Method]FieldError{}
	return next
}

// Validation is the finalize gate.
type Validation struct {
	IsValid     bool            `json:"is_valid"`
	IsOverpaid  bool            `json:"is_overpaid"`
	IsUnderpaid bool            `json:"is_underpaid"`
	Allocated   decimal.Decimal `json:"allocated"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// Validate compares the allocated sum with the payable total.
func (a Allocation) Validate(t Terms) Validation {
	allocated := a.Sum()
	remaining := t.PayableTotal.Sub(allocated)
	valid := remaining.Abs().LessThan(epsilon)
	return Validation{
		IsValid:     valid,
		IsOverpaid:  !valid && remaining.IsNegative(),
		IsUnderpaid: !valid && remaining.IsPositive(),
		Allocated:   allocated,
		Remaining:   remaining,
	}
}

// Reconcile re-derives the parts of the allocation that track the bill. It
// runs whenever totals or the membership balance change.
func (a Allocation) Reconcile(t Terms) Allocation {
	next := a.clone()
	switch {
	case !next.Split && t.RequiresSplit():
		next.enterSplit(t)
	case next.Split:
		next.Amounts[MethodMembership] = t.MembershipCap()
	default:
		primary := next.Primary
		if primary == MethodMembership && t.MembershipCap().LessThan(t.PayableTotal) {
			primary = MethodCash
		}
		next.collapseTo(primary, t.PayableTotal)
	}
	for m := range next.FieldErrors {
		next.checkOverflow(t, m)
	}
	return next
}
