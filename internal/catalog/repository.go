package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads catalog entries from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const (
	getServiceSQL = `SELECT id, name, price::text, tax_rate::text, price_includes_tax, NULL::int
FROM services WHERE id = $1 AND is_active`
	getProductSQL = `SELECT id, name, price::text, tax_rate::text, price_includes_tax, stock_quantity
FROM products WHERE id = $1 AND is_active`
	getMembershipTierSQL = `SELECT id, name, price::text, NULL::text, false, NULL::int
FROM membership_tiers WHERE id = $1 AND is_active`
)

// Get loads a single entry by kind and id.
func (r *Repository) Get(ctx context.Context, kind Kind, id uuid.UUID) (Entry, error) {
	var query string
	switch kind {
	case KindService:
		query = getServiceSQL
	case KindProduct:
		query = getProductSQL
	case KindMembership:
		query = getMembershipTierSQL
	default:
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var (
		entry    = Entry{Kind: kind}
		price    string
		rate     *string
		stockQty *int32
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&entry.ID, &entry.Name, &price, &rate, &entry.PriceIncludesTax, &stockQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("catalog: get %s: %w", kind, err)
	}
	if entry.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return Entry{}, fmt.Errorf("catalog: parse price: %w", err)
	}
	if rate != nil {
		parsed, err := decimal.NewFromString(*rate)
		if err != nil {
			return Entry{}, fmt.Errorf("catalog: parse tax rate: %w", err)
		}
		entry.TaxRatePercent = &parsed
	}
	if stockQty != nil {
		qty := int(*stockQty)
		entry.StockQuantity = &qty
	}
	return entry, nil
}
