package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the sellable catalogs.
type Kind string

const (
	// KindService is a salon service performed by a stylist.
	KindService Kind = "service"
	// KindProduct is a retail product with tracked stock.
	KindProduct Kind = "product"
	// KindMembership is a membership tier sold over the counter.
	KindMembership Kind = "membership"
)

var (
	// ErrNotFound indicates the catalog entry does not exist or is inactive.
	ErrNotFound = errors.New("catalog: entry not found")
	// ErrUnknownKind indicates an unsupported catalog kind.
	ErrUnknownKind = errors.New("catalog: unknown kind")
)

// ParseKind validates a kind string.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(raw); k {
	case KindService, KindProduct, KindMembership:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Entry is the sale-time snapshot of a catalog item.
type Entry struct {
	ID               uuid.UUID        `json:"id"`
	Kind             Kind             `json:"kind"`
	Name             string           `json:"name"`
	UnitPrice        decimal.Decimal  `json:"unit_price"`
	TaxRatePercent   *decimal.Decimal `json:"tax_rate_percent,omitempty"`
	PriceIncludesTax bool             `json:"price_includes_tax,omitempty"`
	// StockQuantity is only tracked for products.
	StockQuantity *int `json:"stock_quantity,omitempty"`
}

// InStock reports whether a product may still be sold. Untracked entries are
// always sellable.
func (e Entry) InStock() bool {
	return e.StockQuantity == nil || *e.StockQuantity > 0
}
