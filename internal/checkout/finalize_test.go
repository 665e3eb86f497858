package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/membership"
	"github.com/rng-salon/salon-pos/internal/shared"
)

type finalizeFixture struct {
	*harness
	account *membership.Account
	spa     catalog.Entry
	serum   catalog.Entry
	gel     catalog.Entry
	id      uuid.UUID
}

// newFinalizeFixture builds a session with a membership-settled service and
// two products: payable 1000 (membership) + 472 + 236 = 1708, membership
// balance 600, so membership carries 600 and cash is filled with the
// remaining 1108.
func newFinalizeFixture(t *testing.T) *finalizeFixture {
	t.Helper()
	f := &finalizeFixture{
		account: activeAccount("600"),
		spa:     serviceEntry("Hair Spa", "1000"),
		serum:   productEntry("Serum", "200", 5),
		gel:     productEntry("Gel", "100", 5),
	}
	f.harness = newHarness(f.spa, f.serum, f.gel)
	f.wallets.accounts[f.account.ClientID] = f.account
	ctx := context.Background()

	view, err := f.svc.Open(ctx, testClient, testStylist)
	require.NoError(t, err)
	f.id = view.ID
	view, err = f.svc.AddItem(ctx, f.id, catalog.KindService, f.spa.ID, 1)
	require.NoError(t, err)
	via := PayMembershipBalance
	_, err = f.svc.UpdateItem(ctx, f.id, view.Cart.Items[0].ID, ItemUpdate{PayVia: &via})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.id, catalog.KindProduct, f.serum.ID, 2)
	require.NoError(t, err)
	view, err = f.svc.AddItem(ctx, f.id, catalog.KindProduct, f.gel.ID, 2)
	require.NoError(t, err)
	require.True(t, view.Validation.IsUnderpaid)
	view, err = f.svc.FillRemaining(ctx, f.id, MethodCash)
	require.NoError(t, err)

	require.True(t, view.Totals.PayableTotal.Equal(d("1708")))
	requireAmount(t, view.Allocation, MethodMembership, "600")
	requireAmount(t, view.Allocation, MethodCash, "1108")
	require.True(t, view.Validation.IsValid)
	return f
}

func TestFinalizeSuccess(t *testing.T) {
	f := newFinalizeFixture(t)
	ctx := context.Background()

	res, err := f.svc.Finalize(ctx, f.id, "")
	require.NoError(t, err)

	require.Equal(t, "RNG0001/2526", res.Order.Number)
	require.True(t, res.Receipt.TotalAmount.Equal(d("1708")))
	require.Len(t, res.Receipt.Payments, 2)
	require.Equal(t, MethodCash, res.Receipt.Payments[0].Method)
	require.Equal(t, MethodMembership, res.Receipt.Payments[1].Method)
	require.True(t, strings.HasPrefix(res.Receipt.Payments[1].Reference, "MEM"))
	require.True(t, res.Receipt.ProcessingFees.IsZero())

	require.Len(t, f.orders.created, 1)
	draft := f.orders.created[0].Draft
	require.Len(t, draft.Lines, 3)
	require.True(t, draft.MembershipSettled.Equal(d("600")))
	require.True(t, draft.SplitPayment)
	require.True(t, strings.HasPrefix(draft.IdempotencyKey, idempotencyPrefix))

	require.True(t, f.account.CurrentBalance.IsZero())
	require.Equal(t, 3, f.stock.levels[f.serum.ID])
	require.Equal(t, 3, f.stock.levels[f.gel.ID])

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "pos:finalize", f.audit.logs[0].Action)
	require.Equal(t, testStylist, f.audit.logs[0].ActorID)
	require.Len(t, f.events.finalized, 1)
	require.True(t, f.events.finalized[0].MembershipSettled.Equal(d("600")))
	require.Len(t, f.tasks.payloads, 1)
	require.ElementsMatch(t, []uuid.UUID{f.serum.ID, f.gel.ID}, f.tasks.payloads[0].ProductIDs)
	require.Equal(t, []string{"success"}, f.metrics.outcomes)
	require.Equal(t, []float64{1708}, f.metrics.payables)

	_, err = f.svc.Get(ctx, f.id)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFinalizeRejectsUnreconciled(t *testing.T) {
	f := newFinalizeFixture(t)
	ctx := context.Background()
	_, err := f.svc.SetAmount(ctx, f.id, MethodCash, d("1000"))
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, f.id, "")
	var rec *ReconciliationError
	require.True(t, errors.As(err, &rec))
	require.True(t, rec.Remaining.Equal(d("108")))
	require.ErrorIs(t, err, ErrUnreconciled)

	require.Empty(t, f.orders.created)
	require.Empty(t, f.wallets.debits)
	require.Empty(t, f.keys.keys)
	require.Equal(t, []string{"rejected"}, f.metrics.outcomes)
}

func TestFinalizeRejectsEmptyCart(t *testing.T) {
	h := newHarness()
	view, err := h.svc.Open(context.Background(), uuid.Nil, uuid.Nil)
	require.NoError(t, err)
	_, err = h.svc.Finalize(context.Background(), view.ID, "")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestFinalizeRejectsMethodLimit(t *testing.T) {
	f := newFinalizeFixture(t)
	ctx := context.Background()
	_, err := f.svc.SetAmount(ctx, f.id, MethodCash, d("900"))
	require.NoError(t, err)
	_, err = f.svc.SetAmount(ctx, f.id, MethodBNPL, d("208"))
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, f.id, "")
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, MethodBNPL, fe.Method)
	require.ErrorIs(t, err, ErrMethodLimit)

	f.svc.opts.EnforceLimits = false
	_, err = f.svc.Finalize(ctx, f.id, "")
	require.NoError(t, err)
}

func TestFinalizeDuplicateKey(t *testing.T) {
	f := newFinalizeFixture(t)
	ctx := context.Background()
	_, err := f.svc.Finalize(ctx, f.id, "counter-1-0001")
	require.NoError(t, err)

	haircut := serviceEntry("Haircut", "500")
	f.catalog.entries[haircut.ID] = haircut
	view, err := f.svc.Open(ctx, uuid.Nil, uuid.Nil)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, view.ID, catalog.KindService, haircut.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, view.ID, "counter-1-0001")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.orders.created, 1)
	require.Contains(t, f.metrics.outcomes, "duplicate")
}

func TestFinalizeCompensatesOrderFailure(t *testing.T) {
	f := newFinalizeFixture(t)
	f.orders.createErr = errBoom

	_, err := f.svc.Finalize(context.Background(), f.id, "")
	var ext *ExternalFailure
	require.True(t, errors.As(err, &ext))
	require.Equal(t, "order_persist", ext.Op)
	require.ErrorIs(t, err, errBoom)

	require.True(t, f.account.CurrentBalance.Equal(d("600")))
	require.Equal(t, []string{stepCreditMembership, stepReleaseKey}, f.metrics.compensations)
	require.Empty(t, f.keys.keys)
	require.Len(t, f.events.compensated, 1)
	require.Equal(t, "order_persist", f.events.compensated[0].FailedAt)
	require.Equal(t, []string{"compensated"}, f.metrics.outcomes)

	_, err = f.svc.Get(context.Background(), f.id)
	require.NoError(t, err)
}

func TestFinalizeCompensatesStockFailure(t *testing.T) {
	f := newFinalizeFixture(t)
	f.stock.levels[f.gel.ID] = 1

	_, err := f.svc.Finalize(context.Background(), f.id, "")
	require.ErrorIs(t, err, ErrExternal)

	require.Len(t, f.orders.created, 1)
	require.Equal(t, []uuid.UUID{f.orders.created[0].ID}, f.orders.voided)
	require.Equal(t, 5, f.stock.levels[f.serum.ID])
	require.Equal(t, 1, f.stock.levels[f.gel.ID])
	require.Len(t, f.stock.restocked, 1)
	require.True(t, f.account.CurrentBalance.Equal(d("600")))
	require.Equal(t, []string{stepRestock, stepVoidOrder, stepCreditMembership, stepReleaseKey}, f.metrics.compensations)
	require.Equal(t, f.orders.created[0].ID, f.events.compensated[0].OrderID)
	require.Empty(t, f.tasks.payloads)
	require.Empty(t, f.audit.logs)

	f.stock.levels[f.gel.ID] = 5
	res, err := f.svc.Finalize(context.Background(), f.id, "")
	require.NoError(t, err)
	require.Equal(t, "RNG0002/2526", res.Order.Number)
}

func TestFinalizeCompensatesDebitFailure(t *testing.T) {
	f := newFinalizeFixture(t)
	f.wallets.debitErr = membership.ErrInsufficientBalance

	_, err := f.svc.Finalize(context.Background(), f.id, "")
	require.ErrorIs(t, err, membership.ErrInsufficientBalance)
	require.ErrorIs(t, err, ErrExternal)
	require.Equal(t, []string{stepReleaseKey}, f.metrics.compensations)
	require.Empty(t, f.orders.created)
	require.Empty(t, f.wallets.credits)
}

func TestFinalizeWithoutOptionalCollaborators(t *testing.T) {
	haircut := serviceEntry("Haircut", "1000")
	sessions := newMemorySessions()
	ords := &memoryOrders{}
	svc := NewService(Deps{
		Sessions: sessions,
		Catalog:  newMemoryCatalog(haircut),
		Orders:   ords,
	}, Options{})
	ctx := context.Background()

	view, err := svc.Open(ctx, uuid.Nil, uuid.Nil)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, view.ID, catalog.KindService, haircut.ID, 1)
	require.NoError(t, err)
	res, err := svc.Finalize(ctx, view.ID, "")
	require.NoError(t, err)
	require.True(t, res.Totals.PayableTotal.Equal(d("1180")))
	require.Len(t, ords.created, 1)
}

func TestFinalizeAfterCorrectingSplitOverpayment(t *testing.T) {
	haircut := serviceEntry("Haircut", "1000")
	h := newHarness(haircut)
	ctx := context.Background()

	view, err := h.svc.Open(ctx, uuid.Nil, testStylist)
	require.NoError(t, err)
	id := view.ID
	_, err = h.svc.AddItem(ctx, id, catalog.KindService, haircut.ID, 1)
	require.NoError(t, err)
	_, err = h.svc.ToggleSplit(ctx, id, true)
	require.NoError(t, err)
	_, err = h.svc.SetAmount(ctx, id, MethodCash, d("600"))
	require.NoError(t, err)
	view, err = h.svc.SetAmount(ctx, id, MethodUPI, d("600"))
	require.NoError(t, err)
	require.Contains(t, view.Allocation.FieldErrors, MethodUPI)

	view, err = h.svc.SetAmount(ctx, id, MethodCash, d("580"))
	require.NoError(t, err)
	require.Empty(t, view.Allocation.FieldErrors)
	require.True(t, view.Validation.IsValid)

	res, err := h.svc.Finalize(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Receipt.TotalAmount.Equal(d("1180")))
	require.Len(t, res.Receipt.Payments, 2)
}

func TestFingerprintTracksAllocation(t *testing.T) {
	sess := NewSession(uuid.Nil, uuid.Nil, testNow)
	_, err := sess.AddItem(serviceEntry("Haircut", "1000"), 1, testNow)
	require.NoError(t, err)

	a, err := fingerprint(sess)
	require.NoError(t, err)
	b, err := fingerprint(sess)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 32)

	require.NoError(t, sess.SetAmount(MethodUPI, d("1180"), testNow))
	c, err := fingerprint(sess)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}
