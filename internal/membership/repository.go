package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/platform/db"
)

// Repository persists membership wallets in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activeForClientSQL = `SELECT cm.id, cm.client_id, mt.name, cm.current_balance::text, cm.expires_at
FROM client_memberships cm
JOIN membership_tiers mt ON mt.id = cm.tier_id
WHERE cm.client_id = $1 AND (cm.expires_at IS NULL OR cm.expires_at > $2)
ORDER BY cm.expires_at DESC NULLS FIRST
LIMIT 1`

// ActiveForClient returns the client's active account or nil when none exists.
func (r *Repository) ActiveForClient(ctx context.Context, clientID uuid.UUID, now time.Time) (*Account, error) {
	var (
		acc     Account
		balance string
	)
	err := r.pool.QueryRow(ctx, activeForClientSQL, clientID, now).Scan(&acc.ID, &acc.ClientID, &acc.TierName, &balance, &acc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("membership: active for client: %w", err)
	}
	if acc.CurrentBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("membership: parse balance: %w", err)
	}
	return &acc, nil
}

// Apply moves the balance and appends a ledger row in one transaction. Debits
// only succeed against an active account holding enough balance.
func (r *Repository) Apply(ctx context.Context, mv Movement) (Movement, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			row     pgx.Row
			balance string
		)
		switch mv.Type {
		case MovementDebit:
			row = tx.QueryRow(ctx, `UPDATE client_memberships
SET current_balance = current_balance - $2::numeric, updated_at = NOW()
WHERE id = $1 AND current_balance >= $2::numeric AND (expires_at IS NULL OR expires_at > NOW())
RETURNING current_balance::text`, mv.AccountID, mv.Amount.String())
		case MovementCredit:
			row = tx.QueryRow(ctx, `UPDATE client_memberships
SET current_balance = current_balance + $2::numeric, updated_at = NOW()
WHERE id = $1
RETURNING current_balance::text`, mv.AccountID, mv.Amount.String())
		default:
			return fmt.Errorf("membership: unknown movement %q", mv.Type)
		}
		if err := row.Scan(&balance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.explainMiss(ctx, tx, mv.AccountID)
			}
			return err
		}
		after, err := decimal.NewFromString(balance)
		if err != nil {
			return fmt.Errorf("membership: parse balance: %w", err)
		}
		mv.BalanceAfter = after
		_, err = tx.Exec(ctx, `INSERT INTO membership_ledger (account_id, movement, amount, balance_after, reference, occurred_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)`, mv.AccountID, string(mv.Type), mv.Amount.String(), after.String(), mv.Reference, mv.At)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	return mv, nil
}

func (r *Repository) explainMiss(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var active bool
	err := tx.QueryRow(ctx, `SELECT expires_at IS NULL OR expires_at > NOW() FROM client_memberships WHERE id = $1`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !active {
		return ErrInactive
	}
	return ErrInsufficientBalance
}
