package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/rng-salon/salon-pos/internal/inventory"
)

// StockChecker reports products at or below their reorder level.
type StockChecker interface {
	LowStock(ctx context.Context, ids []uuid.UUID) ([]inventory.Balance, error)
}

// CatalogInvalidator drops cached catalog snapshots.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

// KeyCleaner removes idempotency keys past retention.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Recorder counts job executions.
type Recorder interface {
	JobProcessed(task, status string)
}

// OrderFinalizedHandler refreshes catalog snapshots after a sale and warns
// about products that need reordering.
type OrderFinalizedHandler struct {
	Stock   StockChecker
	Catalog CatalogInvalidator
	Metrics Recorder
	Logger  *slog.Logger
}

// Handle processes TaskOrderFinalized tasks.
func (h *OrderFinalizedHandler) Handle(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { h.record(TaskOrderFinalized, err) }()

	var payload OrderFinalizedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.ProductIDs) == 0 {
		return nil
	}
	if h.Catalog != nil {
		if err := h.Catalog.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidate catalog: %w", err)
		}
	}
	if h.Stock == nil {
		return nil
	}
	low, err := h.Stock.LowStock(ctx, payload.ProductIDs)
	if err != nil {
		return fmt.Errorf("low stock: %w", err)
	}
	for _, b := range low {
		h.logger().Warn("product at reorder level",
			slog.String("product_id", b.ProductID.String()),
			slog.String("name", b.Name),
			slog.Int("qty", b.Qty),
			slog.Int("reorder_at", b.ReorderAt),
			slog.String("order_number", payload.OrderNumber),
		)
	}
	return nil
}

func (h *OrderFinalizedHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *OrderFinalizedHandler) record(task string, err error) {
	if h.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	h.Metrics.JobProcessed(task, status)
}

// IdempotencyCleanupHandler prunes old finalize keys.
type IdempotencyCleanupHandler struct {
	Store  KeyCleaner
	Logger *slog.Logger
}

// Handle processes TaskIdempotencyCleanup tasks.
func (h *IdempotencyCleanupHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = 7 * 24 * time.Hour
	}
	if err := h.Store.Cleanup(ctx, payload.OlderThan); err != nil {
		return err
	}
	if h.Logger != nil {
		h.Logger.Info("idempotency keys pruned", slog.Duration("older_than", payload.OlderThan))
	}
	return nil
}
