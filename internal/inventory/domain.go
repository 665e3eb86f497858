package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MovementType enumerates product stock movements.
type MovementType string

const (
	// MovementOut represents stock leaving with a sale.
	MovementOut MovementType = "OUT"
	// MovementIn represents stock returned to the shelf.
	MovementIn MovementType = "IN"
)

// Movement is one row of the product stock card.
type Movement struct {
	ID           int64        `json:"id"`
	Code         string       `json:"code"`
	Type         MovementType `json:"type"`
	ProductID    uuid.UUID    `json:"product_id"`
	QtyChange    int          `json:"qty_change"`
	BalanceAfter int          `json:"balance_after"`
	RefModule    string       `json:"ref_module"`
	RefID        string       `json:"ref_id"`
	Note         string       `json:"note"`
	PostedAt     time.Time    `json:"posted_at"`
}

// Balance is the on-hand quantity of a product.
type Balance struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Qty       int       `json:"qty"`
	ReorderAt int       `json:"reorder_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Low reports whether the balance reached its reorder level.
func (b Balance) Low() bool {
	return b.Qty <= b.ReorderAt
}

// MovementInput describes a sale decrement or a restock.
type MovementInput struct {
	ProductID uuid.UUID
	Qty       int
	RefModule string
	RefID     string
	Note      string
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrBalanceNotFound indicates the product has no stock row.
var ErrBalanceNotFound = errors.New("inventory: product stock not found")

// ErrProductRequired rejects movements without a product.
var ErrProductRequired = errors.New("inventory: product required")
