package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rng-salon/salon-pos/internal/platform/db"
)

// Repository persists product stock in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, productID uuid.UUID) (Balance, error)
	UpdateBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Balances returns the stock rows for the given products.
func (r *Repository) Balances(ctx context.Context, productIDs []uuid.UUID) ([]Balance, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, stock_quantity, reorder_level, updated_at
FROM products WHERE id = ANY($1) ORDER BY name`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("inventory: balances: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) {
		var b Balance
		err := row.Scan(&b.ProductID, &b.Name, &b.Qty, &b.ReorderAt, &b.UpdatedAt)
		return b, err
	})
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, productID uuid.UUID) (Balance, error) {
	var b Balance
	err := r.tx.QueryRow(ctx, `SELECT id, name, stock_quantity, reorder_level, updated_at
FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&b.ProductID, &b.Name, &b.Qty, &b.ReorderAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

func (r *txRepo) UpdateBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock_quantity = $2, updated_at = NOW() WHERE id = $1`, balance.ProductID, balance.Qty)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO product_stock_movements (code, movement, product_id, qty_change, balance_after, ref_module, ref_id, note, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		mv.Code, string(mv.Type), mv.ProductID, mv.QtyChange, mv.BalanceAfter, mv.RefModule, mv.RefID, mv.Note, mv.PostedAt).Scan(&id)
	return id, err
}
