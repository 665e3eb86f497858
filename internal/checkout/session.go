package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/membership"
)

// Session is one in-progress checkout at the counter. Nothing in it is
// persisted outside the session store until finalize.
type Session struct {
	ID             uuid.UUID           `json:"id"`
	ClientID       uuid.UUID           `json:"client_id"`
	StylistID      uuid.UUID           `json:"stylist_id"`
	Cart           Cart                `json:"cart"`
	Tax            TaxSettings         `json:"tax"`
	GlobalDiscount decimal.Decimal     `json:"global_discount"`
	Membership     *membership.Account `json:"membership,omitempty"`
	// MembershipUsable is the balance usable at the time the account was read.
	MembershipUsable decimal.Decimal `json:"membership_usable"`
	Allocation       Allocation      `json:"allocation"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewSession starts an empty checkout.
func NewSession(clientID, stylistID uuid.UUID, now time.Time) *Session {
	return &Session{
		ID:             uuid.New(),
		ClientID:       clientID,
		StylistID:      stylistID,
		Tax:            DefaultTaxSettings(),
		GlobalDiscount: zero,
		Allocation:     NewAllocation(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Totals recomputes the order totals.
func (s *Session) Totals() OrderTotals {
	return Aggregate(s.Cart.Items, s.Tax, s.GlobalDiscount)
}

// Terms returns the allocation terms for the current cart.
func (s *Session) Terms() Terms {
	return NewTerms(s.Totals(), s.MembershipUsable)
}

func (s *Session) recompute(now time.Time) {
	s.Allocation = s.Allocation.Reconcile(s.Terms())
	s.UpdatedAt = now
}

// SetMembership attaches the client's wallet, or detaches it when acc is nil.
func (s *Session) SetMembership(acc *membership.Account, now time.Time) {
	s.Membership = acc
	s.MembershipUsable = acc.Usable(now)
	s.recompute(now)
}

// AddItem adds qty units of entry.
func (s *Session) AddItem(entry catalog.Entry, qty int, now time.Time) (LineItem, error) {
	item, err := s.Cart.Add(entry, qty)
	if err != nil {
		return LineItem{}, err
	}
	s.recompute(now)
	return item, nil
}

// SetQuantity changes a line's quantity; zero removes it.
func (s *Session) SetQuantity(id uuid.UUID, qty int, now time.Time) error {
	if err := s.Cart.SetQuantity(id, qty); err != nil {
		return err
	}
	s.recompute(now)
	return nil
}

// SetDiscount sets a line discount.
func (s *Session) SetDiscount(id uuid.UUID, amount decimal.Decimal, now time.Time) error {
	if _, err := s.Cart.SetDiscount(id, amount); err != nil {
		return err
	}
	s.recompute(now)
	return nil
}

// SetPayVia routes a service line.
func (s *Session) SetPayVia(id uuid.UUID, via PayVia, now time.Time) error {
	if err := s.Cart.SetPayVia(id, via); err != nil {
		return err
	}
	s.recompute(now)
	return nil
}

// RemoveItem drops a line.
func (s *Session) RemoveItem(id uuid.UUID, now time.Time) error {
	if err := s.Cart.Remove(id); err != nil {
		return err
	}
	s.recompute(now)
	return nil
}

// SetGlobalDiscount sets the flat discount on the regular bucket.
func (s *Session) SetGlobalDiscount(amount decimal.Decimal, now time.Time) {
	s.GlobalDiscount = maxZero(amount)
	s.recompute(now)
}

// SetTaxSettings flips the GST switches.
func (s *Session) SetTaxSettings(settings TaxSettings, now time.Time) {
	s.Tax = settings
	s.recompute(now)
}

// SetAmount records a payment amount.
func (s *Session) SetAmount(m Method, amount decimal.Decimal, now time.Time) error {
	next, err := s.Allocation.SetAmount(s.Terms(), m, amount)
	if err != nil {
		return err
	}
	s.Allocation, s.UpdatedAt = next, now
	return nil
}

// FillRemaining puts the unpaid rest on m.
func (s *Session) FillRemaining(m Method, now time.Time) error {
	next, err := s.Allocation.FillRemaining(s.Terms(), m)
	if err != nil {
		return err
	}
	s.Allocation, s.UpdatedAt = next, now
	return nil
}

// DistributeEqually splits the bill across methods.
func (s *Session) DistributeEqually(methods []Method, now time.Time) error {
	next, err := s.Allocation.DistributeEqually(s.Terms(), methods)
	if err != nil {
		return err
	}
	s.Allocation, s.UpdatedAt = next, now
	return nil
}

// ClearPayments zeroes the allocation.
func (s *Session) ClearPayments(now time.Time) {
	s.Allocation, s.UpdatedAt = s.Allocation.ClearAll(), now
}

// ToggleSplit switches payment mode explicitly.
func (s *Session) ToggleSplit(on bool, now time.Time) error {
	next, err := s.Allocation.ToggleSplit(s.Terms(), on)
	if err != nil {
		return err
	}
	s.Allocation, s.UpdatedAt = next, now
	return nil
}

// ApplySuggestion replaces the allocation with a suggested one.
func (s *Session) ApplySuggestion(a Allocation, now time.Time) {
	s.Allocation, s.UpdatedAt = a, now
}

// Validate checks the allocation against the bill.
func (s *Session) Validate() Validation {
	return s.Allocation.Validate(s.Terms())
}

// LineView is a line with its computed figures.
type LineView struct {
	LineItem
	GrossTotal  decimal.Decimal `json:"gross_total"`
	NetSubtotal decimal.Decimal `json:"net_subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// View is the read model returned to the counter UI.
type View struct {
	*Session
	Lines       []LineView      `json:"lines"`
	Totals      OrderTotals     `json:"totals"`
	Terms       Terms           `json:"terms"`
	Mode        Mode            `json:"mode"`
	ClientToPay decimal.Decimal `json:"client_to_pay"`
	Validation  Validation      `json:"validation"`
}

func (s *Session) taxApplied(li LineItem) bool {
	switch li.Kind {
	case catalog.KindService:
		return s.Tax.ServiceTax
	case catalog.KindProduct:
		return s.Tax.ProductTax
	default:
		return true
	}
}

// View renders the session with every derived figure.
func (s *Session) View() View {
	terms := s.Terms()
	lines := make([]LineView, 0, len(s.Cart.Items))
	for _, li := range s.Cart.Items {
		applied := s.taxApplied(li)
		lines = append(lines, LineView{
			LineItem:    li,
			GrossTotal:  li.GrossTotal(),
			NetSubtotal: li.NetSubtotal(),
			TaxAmount:   li.TaxAmount(applied),
			LineTotal:   li.LineTotal(applied),
		})
	}
	return View{
		Session:     s,
		Lines:       lines,
		Totals:      s.Totals(),
		Terms:       terms,
		Mode:        s.Allocation.Mode(),
		ClientToPay: terms.ClientToPay(),
		Validation:  s.Allocation.Validate(terms),
	}
}
