package checkout

import "github.com/shopspring/decimal"

// Mode is the payment entry state.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeSplit  Mode = "split"
)

// Mode reports the current state.
func (a Allocation) Mode() Mode {
	if a.Split {
		return ModeSplit
	}
	return ModeSingle
}

// collapseTo leaves single mode with the whole amount on m.
func (a *Allocation) collapseTo(m Method, amount decimal.Decimal) {
	for _, other := range Methods {
		a.Amounts[other] = zero
	}
	a.Amounts[m] = maxZero(amount)
	a.Primary = m
	a.Split = false
	a.FieldErrors = map[Method]FieldError{}
}

// enterSplit moves to split mode with membership at its cap and the rest of
// the bill on the primary standard rail.
func (a *Allocation) enterSplit(t Terms) {
	primary := a.Primary
	if primary == MethodMembership || !primary.Valid() {
		primary = MethodCash
	}
	for _, m := range Methods {
		a.Amounts[m] = zero
	}
	a.Amounts[MethodMembership] = t.MembershipCap()
	a.Amounts[primary] = t.ClientToPay()
	a.Primary = primary
	a.Split = true
	a.FieldErrors = map[Method]FieldError{}
}

// largestHolder picks the rail that takes the whole bill when split mode is
// switched off. Ties go to the earlier rail in Methods; membership only
// qualifies when it can carry the full total.
func (a Allocation) largestHolder(t Terms) Method {
	best := MethodCash
	bestAmount := zero
	for _, m := range Methods {
		if m == MethodMembership && t.MembershipCap().LessThan(t.PayableTotal) {
			continue
		}
		if v := a.Amount(m); v.GreaterThan(bestAmount) {
			best, bestAmount = m, v
		}
	}
	return best
}

// ToggleSplit is the explicit mode switch. Both directions re-normalize the
// allocation so it is never left half split.
func (a Allocation) ToggleSplit(t Terms, on bool) (Allocation, error) {
	if on == a.Split {
		return a, nil
	}
	next := a.clone()
	if on {
		next.enterSplit(t)
		return next, nil
	}
	if t.RequiresSplit() {
		return a, ErrSplitRequired
	}
	next.collapseTo(a.largestHolder(t), t.PayableTotal)
	return next, nil
}
