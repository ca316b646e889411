/*
errors.go - Error taxonomy for the point ledger

ERROR CATEGORIES:
  1. Validation errors - caller input was invalid or a precondition failed.
     Detected before any mutation, never retried by the ledger.
       ErrInvalidAccount, ErrInvalidAmount, ErrAmountOutOfRange,
       ErrBalanceLimitExceeded, ErrInsufficientBalance
  2. Storage errors - the backing store failed. Fatal to the operation,
     logged, surfaced as an internal error.
       ErrStorageFault

USAGE:
  p, err := ledger.Use(ctx, 1, 2_000)
  switch {
  case errors.Is(err, point.ErrInsufficientBalance):
      // 400
  case point.IsStorageFault(err):
      // 500
  }
*/
package point

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAccount is returned when the account id is zero or negative.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrInvalidAmount is returned when the amount is missing, zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountOutOfRange is returned when the amount is outside [MinAmount, MaxAmount].
	ErrAmountOutOfRange = errors.New("amount out of range")

	// ErrBalanceLimitExceeded is returned when a charge would push the balance above MaxPoints.
	ErrBalanceLimitExceeded = errors.New("balance limit exceeded")

	// ErrInsufficientBalance is returned when a use exceeds the current balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrStorageFault is returned when the backing store fails.
	ErrStorageFault = errors.New("storage fault")
)

// Op names the ledger operation an error came from.
type Op string

const (
	OpCharge  Op = "charge"
	OpUse     Op = "use"
	OpBalance Op = "balance"
	OpHistory Op = "history"
)

func (o Op) txType() TransactionType {
	if o == OpUse {
		return TxUse
	}
	return TxCharge
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected operation.
type ValidationError struct {
	Kind      error // one of the validation sentinels
	Op        Op
	AccountID AccountID
	Amount    int64
	Balance   int64 // balance the check ran against, when it needed one
	Message   string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// StorageError wraps a backing-store failure.
// It matches both ErrStorageFault and the underlying cause.
type StorageError struct {
	Op        Op
	AccountID AccountID
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage fault during %s for account %d: %v", e.Op, e.AccountID, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFault, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether err was caused by caller input or a failed
// precondition.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAmountOutOfRange) ||
		errors.Is(err, ErrBalanceLimitExceeded) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsStorageFault reports whether err came from the backing store.
func IsStorageFault(err error) bool {
	return errors.Is(err, ErrStorageFault)
}

// Code returns a stable identifier for the kind of err, or "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAccount):
		return "InvalidAccount"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrAmountOutOfRange):
		return "AmountOutOfRange"
	case errors.Is(err, ErrBalanceLimitExceeded):
		return "BalanceLimitExceeded"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrStorageFault):
		return "StorageFault"
	default:
		return "Internal"
	}
}
