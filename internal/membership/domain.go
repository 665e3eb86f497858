package membership

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the account does not exist.
	ErrNotFound = errors.New("membership: account not found")
	// ErrInsufficientBalance is returned when a debit would overdraw the account.
	ErrInsufficientBalance = errors.New("membership: insufficient balance")
	// ErrInactive is returned when the account has expired.
	ErrInactive = errors.New("membership: account inactive")
	// ErrInvalidAmount rejects zero or negative movements.
	ErrInvalidAmount = errors.New("membership: amount must be positive")
)

// Account is a client's prepaid membership wallet.
type Account struct {
	ID             uuid.UUID       `json:"id"`
	ClientID       uuid.UUID       `json:"client_id"`
	TierName       string          `json:"tier_name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
}

// IsActive reports whether the account can be used at now.
func (a Account) IsActive(now time.Time) bool {
	return a.ExpiresAt == nil || now.Before(*a.ExpiresAt)
}

// Usable returns the balance that can be spent at now.
func (a *Account) Usable(now time.Time) decimal.Decimal {
	if a == nil || !a.IsActive(now) || a.CurrentBalance.IsNegative() {
		return decimal.Zero
	}
	return a.CurrentBalance
}

// MovementType classifies ledger rows.
type MovementType string

const (
	MovementDebit  MovementType = "DEBIT"
	MovementCredit MovementType = "CREDIT"
)

// Movement is one row of the membership ledger.
type Movement struct {
	AccountID    uuid.UUID       `json:"account_id"`
	Type         MovementType    `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reference    string          `json:"reference"`
	At           time.Time       `json:"at"`
}
