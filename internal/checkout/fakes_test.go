package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
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

// memorySessions stores sessions as JSON so tests see the same round trip as
// the redis store.
type memorySessions struct {
	mu   sync.Mutex
	data map[uuid.UUID][]byte
}

func newMemorySessions() *memorySessions {
	return &memorySessions{data: map[uuid.UUID][]byte{}}
}

func (m *memorySessions) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	if sess.Allocation.FieldErrors == nil {
		sess.Allocation.FieldErrors = map[Method]FieldError{}
	}
	return &sess, nil
}

func (m *memorySessions) Save(_ context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sess.ID] = raw
	return nil
}

func (m *memorySessions) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

type memoryCatalog struct {
	entries map[uuid.UUID]catalog.Entry
	err     error
	lookups int
}

func newMemoryCatalog(entries ...catalog.Entry) *memoryCatalog {
	c := &memoryCatalog{entries: map[uuid.UUID]catalog.Entry{}}
	for _, e := range entries {
		c.entries[e.ID] = e
	}
	return c
}

func (c *memoryCatalog) Lookup(_ context.Context, kind catalog.Kind, id uuid.UUID) (catalog.Entry, error) {
	c.lookups++
	if c.err != nil {
		return catalog.Entry{}, c.err
	}
	e, ok := c.entries[id]
	if !ok || e.Kind != kind {
		return catalog.Entry{}, catalog.ErrNotFound
	}
	return e, nil
}

type memoryWallets struct {
	accounts map[uuid.UUID]*membership.Account
	lookErr  error
	debitErr error
	debits   []decimal.Decimal
	credits  []decimal.Decimal
}

func newMemoryWallets(accounts ...*membership.Account) *memoryWallets {
	w := &memoryWallets{accounts: map[uuid.UUID]*membership.Account{}}
	for _, a := range accounts {
		w.accounts[a.ClientID] = a
	}
	return w
}

func (w *memoryWallets) ActiveForClient(_ context.Context, clientID uuid.UUID) (*membership.Account, error) {
	if w.lookErr != nil {
		return nil, w.lookErr
	}
	acc, ok := w.accounts[clientID]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (w *memoryWallets) find(id uuid.UUID) *membership.Account {
	for _, a := range w.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (w *memoryWallets) Debit(_ context.Context, accountID uuid.UUID, amount decimal.Decimal, _ string) error {
	if w.debitErr != nil {
		return w.debitErr
	}
	acc := w.find(accountID)
	if acc == nil {
		return membership.ErrNotFound
	}
	if acc.CurrentBalance.LessThan(amount) {
		return membership.ErrInsufficientBalance
	}
	acc.CurrentBalance = acc.CurrentBalance.Sub(amount)
	w.debits = append(w.debits, amount)
	return nil
}

func (w *memoryWallets) Credit(_ context.Context, accountID uuid.UUID, amount decimal.Decimal, _ string) error {
	acc := w.find(accountID)
	if acc == nil {
		return membership.ErrNotFound
	}
	acc.CurrentBalance = acc.CurrentBalance.Add(amount)
	w.credits = append(w.credits, amount)
	return nil
}

type memoryOrders struct {
	created   []orders.Order
	voided    []uuid.UUID
	createErr error
}

func (o *memoryOrders) Create(_ context.Context, draft orders.Draft) (orders.Order, error) {
	if o.createErr != nil {
		return orders.Order{}, o.createErr
	}
	seq := int64(len(o.created) + 1)
	order := orders.Order{
		Draft:     draft,
		ID:        uuid.New(),
		Number:    orders.FormatNumber("RNG", seq, testNow),
		Status:    orders.StatusCompleted,
		CreatedAt: testNow,
	}
	o.created = append(o.created, order)
	return order, nil
}

func (o *memoryOrders) Void(_ context.Context, id uuid.UUID, _ string) error {
	o.voided = append(o.voided, id)
	return nil
}

type memoryStock struct {
	levels    map[uuid.UUID]int
	restocked []inventory.MovementInput
}

func newMemoryStock() *memoryStock {
	return &memoryStock{levels: map[uuid.UUID]int{}}
}

func (s *memoryStock) Decrement(_ context.Context, input inventory.MovementInput) (inventory.Movement, error) {
	level, ok := s.levels[input.ProductID]
	if !ok || level < input.Qty {
		return inventory.Movement{}, inventory.ErrNegativeStock
	}
	s.levels[input.ProductID] = level - input.Qty
	return inventory.Movement{ProductID: input.ProductID, QtyChange: -input.Qty, BalanceAfter: level - input.Qty}, nil
}

func (s *memoryStock) Restock(_ context.Context, input inventory.MovementInput) (inventory.Movement, error) {
	s.levels[input.ProductID] += input.Qty
	s.restocked = append(s.restocked, input)
	return inventory.Movement{ProductID: input.ProductID, QtyChange: input.Qty, BalanceAfter: s.levels[input.ProductID]}, nil
}

type memoryKeys struct {
	keys map[string]string
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{keys: map[string]string{}}
}

func (k *memoryKeys) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := k.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	k.keys[key] = module
	return nil
}

func (k *memoryKeys) Delete(_ context.Context, key string) error {
	delete(k.keys, key)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingEvents struct {
	finalized   []events.OrderFinalized
	compensated []events.OrderCompensated
}

func (e *recordingEvents) PublishOrderFinalized(_ context.Context, evt events.OrderFinalized) error {
	e.finalized = append(e.finalized, evt)
	return nil
}

func (e *recordingEvents) PublishOrderCompensated(_ context.Context, evt events.OrderCompensated) error {
	e.compensated = append(e.compensated, evt)
	return nil
}

type recordingTasks struct {
	payloads []jobs.OrderFinalizedPayload
	err      error
}

func (r *recordingTasks) EnqueueOrderFinalized(_ context.Context, payload jobs.OrderFinalizedPayload) error {
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

type recordingMetrics struct {
	outcomes      []string
	compensations []string
	payables      []float64
}

func (m *recordingMetrics) FinalizeOutcome(outcome string) { m.outcomes = append(m.outcomes, outcome) }
func (m *recordingMetrics) Compensation(step string)       { m.compensations = append(m.compensations, step) }
func (m *recordingMetrics) ObservePayable(amount float64)  { m.payables = append(m.payables, amount) }

var errBoom = errors.New("boom")

type harness struct {
	svc      *Service
	sessions *memorySessions
	catalog  *memoryCatalog
	wallets  *memoryWallets
	orders   *memoryOrders
	stock    *memoryStock
	keys     *memoryKeys
	audit    *recordingAudit
	events   *recordingEvents
	tasks    *recordingTasks
	metrics  *recordingMetrics
}

func newHarness(entries ...catalog.Entry) *harness {
	h := &harness{
		sessions: newMemorySessions(),
		catalog:  newMemoryCatalog(entries...),
		wallets:  newMemoryWallets(),
		orders:   &memoryOrders{},
		stock:    newMemoryStock(),
		keys:     newMemoryKeys(),
		audit:    &recordingAudit{},
		events:   &recordingEvents{},
		tasks:    &recordingTasks{},
		metrics:  &recordingMetrics{},
	}
	for _, e := range entries {
		if e.Kind == catalog.KindProduct && e.StockQuantity != nil {
			h.stock.levels[e.ID] = *e.StockQuantity
		}
	}
	h.svc = NewService(Deps{
		Sessions:    h.sessions,
		Catalog:     h.catalog,
		Memberships: h.wallets,
		Ledger:      h.wallets,
		Orders:      h.orders,
		Stock:       h.stock,
		Idempotency: h.keys,
		Audit:       h.audit,
		Events:      h.events,
		Tasks:       h.tasks,
		Metrics:     h.metrics,
	}, DefaultOptions())
	h.svc.now = func() time.Time { return testNow }
	return h
}
