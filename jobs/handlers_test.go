package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rng-salon/salon-pos/internal/inventory"
)

type stubStock struct {
	asked []uuid.UUID
	low   []inventory.Balance
	err   error
}

func (s *stubStock) LowStock(_ context.Context, ids []uuid.UUID) ([]inventory.Balance, error) {
	s.asked = append(s.asked, ids...)
	return s.low, s.err
}

type countingCatalog struct{ calls int }

func (c *countingCatalog) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type jobRecorder struct{ statuses []string }

func (r *jobRecorder) JobProcessed(task, status string) {
	r.statuses = append(r.statuses, task+":"+status)
}

type stubCleaner struct{ olderThan time.Duration }

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	s.olderThan = olderThan
	return nil
}

func TestOrderFinalizedHandlerChecksStock(t *testing.T) {
	product := uuid.New()
	stock := &stubStock{low: []inventory.Balance{{ProductID: product, Name: "Argan Oil", Qty: 1, ReorderAt: 3}}}
	cat := &countingCatalog{}
	rec := &jobRecorder{}
	h := &OrderFinalizedHandler{Stock: stock, Catalog: cat, Metrics: rec}

	task, err := NewOrderFinalizedTask(OrderFinalizedPayload{
		OrderID:           uuid.New(),
		OrderNumber:       "RNG0001/2526",
		ProductIDs:        []uuid.UUID{product},
		MembershipDebited: decimal.Zero,
	})
	require.NoError(t, err)
	require.Equal(t, TaskOrderFinalized, task.Type())

	require.NoError(t, h.Handle(context.Background(), task))
	require.Equal(t, []uuid.UUID{product}, stock.asked)
	require.Equal(t, 1, cat.calls)
	require.Equal(t, []string{TaskOrderFinalized + ":success"}, rec.statuses)
}

func TestOrderFinalizedHandlerSkipsServiceOnlyOrders(t *testing.T) {
	stock := &stubStock{}
	h := &OrderFinalizedHandler{Stock: stock}
	task, err := NewOrderFinalizedTask(OrderFinalizedPayload{OrderID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), task))
	require.Empty(t, stock.asked)
}

func TestOrderFinalizedHandlerReportsFailures(t *testing.T) {
	stock := &stubStock{err: errors.New("db down")}
	rec := &jobRecorder{}
	h := &OrderFinalizedHandler{Stock: stock, Metrics: rec}
	task, err := NewOrderFinalizedTask(OrderFinalizedPayload{OrderID: uuid.New(), ProductIDs: []uuid.UUID{uuid.New()}})
	require.NoError(t, err)
	require.Error(t, h.Handle(context.Background(), task))
	require.Equal(t, []string{TaskOrderFinalized + ":failure"}, rec.statuses)
}

func TestOrderFinalizedHandlerRejectsBadPayload(t *testing.T) {
	h := &OrderFinalizedHandler{}
	err := h.Handle(context.Background(), asynq.NewTask(TaskOrderFinalized, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	h := &IdempotencyCleanupHandler{Store: cleaner}
	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, cleaner.olderThan)

	task, err = NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), task))
	require.Equal(t, time.Hour, cleaner.olderThan)
}
