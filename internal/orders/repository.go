package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rng-salon/salon-pos/internal/platform/db"
)

// Repository persists POS orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// Insert stores the order header, its lines and payments atomically. The
// sequence row for the fiscal year is locked by the upsert so numbers are
// gapless per prefix.
func (r *Repository) Insert(ctx context.Context, prefix string, draft Draft, at time.Time) (Order, error) {
	order := Order{Draft: draft, ID: uuid.New(), Status: StatusCompleted, CreatedAt: at}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var seq int64
		err := tx.QueryRow(ctx, `INSERT INTO order_sequences (prefix, fiscal_year, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (prefix, fiscal_year) DO UPDATE SET last_value = order_sequences.last_value + 1
RETURNING last_value`, prefix, FiscalYear(at)).Scan(&seq)
		if err != nil {
			return fmt.Errorf("orders: next sequence: %w", err)
		}
		order.Number = FormatNumber(prefix, seq, at)

		_, err = tx.Exec(ctx, `INSERT INTO pos_orders (id, number, client_id, stylist_id, status, subtotal, tax_total, global_discount,
membership_settled, payable_total, split_payment, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11, NULLIF($12, ''), $13)`,
			order.ID, order.Number, nullUUID(draft.ClientID), nullUUID(draft.StylistID), string(order.Status),
			draft.Subtotal.String(), draft.TaxTotal.String(), draft.GlobalDiscount.String(),
			draft.MembershipSettled.String(), draft.PayableTotal.String(), draft.SplitPayment, draft.IdempotencyKey, at)
		if err != nil {
			return fmt.Errorf("orders: insert header: %w", err)
		}

		batch := &pgx.Batch{}
		for _, line := range draft.Lines {
			batch.Queue(`INSERT INTO pos_order_lines (order_id, item_id, kind, catalog_id, name, quantity, unit_price, discount,
tax_rate, pay_via, net_subtotal, tax_amount, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11::numeric, $12::numeric, $13::numeric)`,
				order.ID, line.ItemID, line.Kind, line.CatalogID, line.Name, line.Quantity, line.UnitPrice.String(),
				line.Discount.String(), line.TaxRatePercent.String(), line.PayVia, line.NetSubtotal.String(),
				line.TaxAmount.String(), line.LineTotal.String())
		}
		for _, p := range draft.Payments {
			batch.Queue(`INSERT INTO pos_order_payments (order_id, method, amount, processing_fee, reference)
VALUES ($1, $2, $3::numeric, $4::numeric, $5)`, order.ID, p.Method, p.Amount.String(), p.ProcessingFee.String(), p.Reference)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("orders: insert lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// MarkVoided flags an order as voided.
func (r *Repository) MarkVoided(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE pos_orders SET status = $2, void_reason = $3, voided_at = NOW()
WHERE id = $1 AND status <> $2`, id, string(StatusVoided), reason)
	if err != nil {
		return fmt.Errorf("orders: void: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pos_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("orders: void: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyVoided
}
