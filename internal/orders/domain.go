package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = errors.New("orders: order not found")
	// ErrEmptyOrder rejects drafts without lines.
	ErrEmptyOrder = errors.New("orders: order has no lines")
	// ErrAlreadyVoided is returned when voiding twice.
	ErrAlreadyVoided = errors.New("orders: order already voided")
)

// Status tracks the persisted order lifecycle.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusVoided    Status = "VOIDED"
)

// Line is a persisted line item with its computed figures.
type Line struct {
	ItemID         uuid.UUID       `json:"item_id"`
	Kind           string          `json:"kind"`
	CatalogID      uuid.UUID       `json:"catalog_id"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Discount       decimal.Decimal `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	PayVia         string          `json:"pay_via"`
	NetSubtotal    decimal.Decimal `json:"net_subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// Payment is one settlement rail of the order.
type Payment struct {
	Method        string          `json:"method"`
	Amount        decimal.Decimal `json:"amount"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	Reference     string          `json:"reference"`
}

// Draft carries everything needed to persist a finalized checkout.
type Draft struct {
	ClientID          uuid.UUID       `json:"client_id"`
	StylistID         uuid.UUID       `json:"stylist_id"`
	Lines             []Line          `json:"lines"`
	Payments          []Payment       `json:"payments"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxTotal          decimal.Decimal `json:"tax_total"`
	GlobalDiscount    decimal.Decimal `json:"global_discount"`
	MembershipSettled decimal.Decimal `json:"membership_settled"`
	PayableTotal      decimal.Decimal `json:"payable_total"`
	SplitPayment      bool            `json:"split_payment"`
	IdempotencyKey    string          `json:"idempotency_key"`
}

// Order is the persisted record.
type Order struct {
	Draft
	ID        uuid.UUID `json:"id"`
	Number    string    `json:"number"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// FiscalYear returns the April-March fiscal year containing at, as its start
// calendar year.
func FiscalYear(at time.Time) int {
	if at.Month() >= time.April {
		return at.Year()
	}
	return at.Year() - 1
}

// FormatNumber renders an order number such as RNG0001/2526.
func FormatNumber(prefix string, seq int64, at time.Time) string {
	start := FiscalYear(at)
	return fmt.Sprintf("%s%04d/%02d%02d", prefix, seq, start%100, (start+1)%100)
}
