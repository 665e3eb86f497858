package checkout

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrSessionNotFound indicates the checkout session expired or never existed.
	ErrSessionNotFound = errors.New("checkout: session not found")
	// ErrItemNotFound indicates the line item is not in the cart.
	ErrItemNotFound = errors.New("checkout: line item not found")
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("checkout: quantity must be positive")
	// ErrUnknownMethod rejects unsupported payment rails.
	ErrUnknownMethod = errors.New("checkout: unknown payment method")
	// ErrNoMethods is returned when distributing across an empty set.
	ErrNoMethods = errors.New("checkout: at least one payment method required")
	// ErrNotDistributable rejects membership as an equal-split target.
	ErrNotDistributable = errors.New("checkout: membership balance cannot be split equally")
	// ErrSplitRequired blocks leaving split mode while two rails are needed.
	ErrSplitRequired = errors.New("checkout: cart requires split payment")
	// ErrEmptyCart blocks finalizing an empty cart.
	ErrEmptyCart = errors.New("checkout: cart is empty")

	// ErrExceedsRemaining marks a split entry that overshoots the bill.
	ErrExceedsRemaining = errors.New("checkout: amount exceeds remaining balance")
	// ErrMembershipCap marks a membership entry above balance or eligibility.
	ErrMembershipCap = errors.New("checkout: amount exceeds membership limit")
	// ErrMethodLimit marks an entry outside the rail's transaction limits.
	ErrMethodLimit = errors.New("checkout: amount outside payment method limits")

	// ErrIneligible is the root of every EligibilityError.
	ErrIneligible = errors.New("checkout: not eligible")
	// ErrUnreconciled is the root of every ReconciliationError.
	ErrUnreconciled = errors.New("checkout: payments do not match payable total")
	// ErrExternal is the root of every ExternalFailure.
	ErrExternal = errors.New("checkout: external dependency failed")
)

// Field error codes.
const (
	CodeExceedsRemaining = "exceeds_remaining"
	CodeMembershipCap    = "membership_cap"
	CodeMethodLimit      = "method_limit"
)

var fieldErrorRoots = map[string]error{
	CodeExceedsRemaining: ErrExceedsRemaining,
	CodeMembershipCap:    ErrMembershipCap,
	CodeMethodLimit:      ErrMethodLimit,
}

// FieldError is a per-method validation problem shown next to the field.
type FieldError struct {
	Method  Method `json:"method"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("checkout: %s: %s", e.Method, e.Message)
}

func (e *FieldError) Unwrap() error { return fieldErrorRoots[e.Code] }

// ReconciliationError blocks finalize while payments and bill disagree.
type ReconciliationError struct {
	Remaining decimal.Decimal
}

func (e *ReconciliationError) Error() string {
	if e.Remaining.IsNegative() {
		return fmt.Sprintf("checkout: overpaid by %s", e.Remaining.Neg().StringFixed(2))
	}
	return fmt.Sprintf("checkout: %s still to be paid", e.Remaining.StringFixed(2))
}

func (e *ReconciliationError) Unwrap() error { return ErrUnreconciled }

// EligibilityError rejects a cart mutation without changing state.
type EligibilityError struct {
	ItemID uuid.UUID
	Reason string
}

func (e *EligibilityError) Error() string {
	return "checkout: " + e.Reason
}

func (e *EligibilityError) Unwrap() error { return ErrIneligible }

// ExternalFailure wraps a failed collaborator call.
type ExternalFailure struct {
	Op  string
	Err error
}

func (e *ExternalFailure) Error() string {
	return fmt.Sprintf("checkout: %s: %v", e.Op, e.Err)
}

func (e *ExternalFailure) Unwrap() []error { return []error{ErrExternal, e.Err} }

func external(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalFailure{Op: op, Err: err}
}
