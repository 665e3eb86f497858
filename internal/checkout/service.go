package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/events"
	"github.com/rng-salon/salon-pos/internal/inventory"
	"github.com/rng-salon/salon-pos/internal/membership"
	"github.com/rng-salon/salon-pos/internal/orders"
	"github.com/rng-salon/salon-pos/internal/shared"
	"github.com/rng-salon/salon-pos/jobs"
)

// SessionStore persists in-progress sessions.
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CatalogLookup resolves sellable entries.
type CatalogLookup interface {
	Lookup(ctx context.Context, kind catalog.Kind, id uuid.UUID) (catalog.Entry, error)
}

// MembershipLookup finds the client's active wallet.
type MembershipLookup interface {
	ActiveForClient(ctx context.Context, clientID uuid.UUID) (*membership.Account, error)
}

// MembershipLedger moves wallet balance.
type MembershipLedger interface {
	Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) error
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) error
}

// OrderStore persists and voids orders.
type OrderStore interface {
	Create(ctx context.Context, draft orders.Draft) (orders.Order, error)
	Void(ctx context.Context, id uuid.UUID, reason string) error
}

// StockLedger moves product stock.
type StockLedger interface {
	Decrement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
	Restock(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
}

// IdempotencyGuard claims and releases finalize keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records finalized orders.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPublisher announces order outcomes.
type EventPublisher interface {
	PublishOrderFinalized(ctx context.Context, evt events.OrderFinalized) error
	PublishOrderCompensated(ctx context.Context, evt events.OrderCompensated) error
}

// TaskEnqueuer schedules follow-up work for a finalized order.
type TaskEnqueuer interface {
	EnqueueOrderFinalized(ctx context.Context, payload jobs.OrderFinalizedPayload) error
}

// Recorder receives checkout metrics.
type Recorder interface {
	FinalizeOutcome(outcome string)
	Compensation(step string)
	ObservePayable(amount float64)
}

// Deps bundles the collaborators of Service. Sessions, Catalog and Orders are
// required; the rest may be nil.
type Deps struct {
	Sessions    SessionStore
	Catalog     CatalogLookup
	Memberships MembershipLookup
	Ledger      MembershipLedger
	Orders      OrderStore
	Stock       StockLedger
	Idempotency IdempotencyGuard
	Audit       AuditPort
	Events      EventPublisher
	Tasks       TaskEnqueuer
	Metrics     Recorder
	Logger      *slog.Logger
}

// Options tune finalize behaviour.
type Options struct {
	Limits         Limits
	EnforceLimits  bool
	AvailableRails []Method
}

// DefaultOptions enforce the standard rail limits with every rail available.
func DefaultOptions() Options {
	return Options{Limits: DefaultLimits(), EnforceLimits: true, AvailableRails: Methods}
}

// Service runs checkout sessions on top of the session store.
type Service struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// NewService constructs Service.
func NewService(deps Deps, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if opts.Limits == nil {
		opts.Limits = Limits{}
	}
	if len(opts.AvailableRails) == 0 {
		opts.AvailableRails = Methods
	}
	return &Service{deps: deps, opts: opts, now: time.Now}
}

// ItemUpdate carries the optional changes to a line.
type ItemUpdate struct {
	Quantity *int
	Discount *decimal.Decimal
	PayVia   *PayVia
}

// Open starts a session and attaches the client's active membership.
func (s *Service) Open(ctx context.Context, clientID, stylistID uuid.UUID) (View, error) {
	now := s.now()
	sess := NewSession(clientID, stylistID, now)
	acc, err := s.activeMembership(ctx, clientID)
	if err != nil {
		return View{}, err
	}
	sess.SetMembership(acc, now)
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return View{}, err
	}
	s.deps.Logger.Info("checkout session opened",
		slog.String("session_id", sess.ID.String()),
		slog.String("client_id", clientID.String()),
		slog.Bool("membership", acc != nil),
	)
	return sess.View(), nil
}

// Get returns the current view of a session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return sess.View(), nil
}

// AddItem looks up a catalog entry and adds it to the cart. The session is
// loaded first so an unknown session never reaches the catalog.
func (s *Service) AddItem(ctx context.Context, id uuid.UUID, kind catalog.Kind, catalogID uuid.UUID, qty int) (View, error) {
	if qty <= 0 {
		return View{}, ErrInvalidQuantity
	}
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		entry, err := s.deps.Catalog.Lookup(ctx, kind, catalogID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrUnknownKind) {
				return err
			}
			return external("catalog lookup", err)
		}
		_, err = sess.AddItem(entry, qty, now)
		return err
	})
}

// UpdateItem applies pay-via, quantity and discount changes to a line, in
// that order. A zero quantity removes the line and ignores the rest. A
// rejected change leaves the whole line untouched.
func (s *Service) UpdateItem(ctx context.Context, id, itemID uuid.UUID, upd ItemUpdate) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		if upd.PayVia != nil {
			if err := sess.SetPayVia(itemID, *upd.PayVia, now); err != nil {
				return err
			}
		}
		if upd.Quantity != nil {
			if err := sess.SetQuantity(itemID, *upd.Quantity, now); err != nil {
				return err
			}
			if *upd.Quantity <= 0 {
				return nil
			}
		}
		if upd.Discount != nil {
			if err := sess.SetDiscount(itemID, *upd.Discount, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveItem drops a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, id, itemID uuid.UUID) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		return sess.RemoveItem(itemID, now)
	})
}

// SetGlobalDiscount sets the flat discount.
func (s *Service) SetGlobalDiscount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.SetGlobalDiscount(amount, now)
		return nil
	})
}

// SetTaxSettings flips the GST switches.
func (s *Service) SetTaxSettings(ctx context.Context, id uuid.UUID, settings TaxSettings) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.SetTaxSettings(settings, now)
		return nil
	})
}

// SetAmount records an amount on a rail.
func (s *Service) SetAmount(ctx context.Context, id uuid.UUID, m Method, amount decimal.Decimal) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		return sess.SetAmount(m, amount, now)
	})
}

// FillRemaining puts the unpaid rest on a rail.
func (s *Service) FillRemaining(ctx context.Context, id uuid.UUID, m Method) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		return sess.FillRemaining(m, now)
	})
}

// Distribute splits the bill equally across methods.
func (s *Service) Distribute(ctx context.Context, id uuid.UUID, methods []Method) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		return sess.DistributeEqually(methods, now)
	})
}

// ClearPayments zeroes every rail.
func (s *Service) ClearPayments(ctx context.Context, id uuid.UUID) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.ClearPayments(now)
		return nil
	})
}

// ToggleSplit switches payment mode.
func (s *Service) ToggleSplit(ctx context.Context, id uuid.UUID, on bool) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		return sess.ToggleSplit(on, now)
	})
}

// Suggest proposes an allocation without changing the session.
func (s *Service) Suggest(ctx context.Context, id uuid.UUID) (Allocation, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	return Suggest(sess.Terms(), s.opts.Limits, s.opts.AvailableRails), nil
}

// ApplySuggestion replaces the allocation with the suggested one.
func (s *Service) ApplySuggestion(ctx context.Context, id uuid.UUID) (View, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.ApplySuggestion(Suggest(sess.Terms(), s.opts.Limits, s.opts.AvailableRails), now)
		return nil
	})
}

// RefreshMembership re-reads the client's wallet, for instance after a top-up
// at another counter.
func (s *Service) RefreshMembership(ctx context.Context, id uuid.UUID) (View, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	acc, err := s.activeMembership(ctx, sess.ClientID)
	if err != nil {
		return View{}, err
	}
	sess.SetMembership(acc, s.now())
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return View{}, err
	}
	return sess.View(), nil
}

// Abandon discards a session. Nothing outside the session store is touched.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID) error {
	if _, err := s.deps.Sessions.Get(ctx, id); err != nil {
		return err
	}
	return s.deps.Sessions.Delete(ctx, id)
}

func (s *Service) activeMembership(ctx context.Context, clientID uuid.UUID) (*membership.Account, error) {
	if clientID == uuid.Nil || s.deps.Memberships == nil {
		return nil, nil
	}
	acc, err := s.deps.Memberships.ActiveForClient(ctx, clientID)
	if err != nil {
		return nil, external("membership lookup", err)
	}
	return acc, nil
}

// mutate loads a session, applies fn and saves it. When fn fails nothing is
// written, so the stored session is unchanged.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*Session, time.Time) error) (View, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	if err := fn(sess, s.now()); err != nil {
		return View{}, err
	}
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return View{}, err
	}
	return sess.View(), nil
}
