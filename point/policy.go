package point

import "fmt"

// Limits. Fixed, not runtime configurable.
const (
	MinAmount int64 = 1_000
	MaxAmount int64 = 1_000_000
	MaxPoints int64 = 1_000_000
)

// =============================================================================
// VALIDATION POLICY
// =============================================================================
//
// Checks run in a fixed order and the first failure wins:
//   1. account id > 0                          ErrInvalidAccount
//   2. amount > 0                              ErrInvalidAmount
//   3. MinAmount <= amount <= MaxAmount        ErrAmountOutOfRange
//   4. charge: current+amount <= MaxPoints     ErrBalanceLimitExceeded
//   5. use: current >= amount                  ErrInsufficientBalance
//
// 1-3 need no account state. 4 and 5 must run against a balance read under
// the account's lock.

// ValidateAccount runs check 1.
func ValidateAccount(op Op, id AccountID) error {
	switch {
	case id < 0:
		return invalid(ErrInvalidAccount, op, id, 0, 0, "account id must not be negative")
	case id == 0:
		return invalid(ErrInvalidAccount, op, id, 0, 0, "account id must not be zero")
	}
	return nil
}

// ValidateAmount runs checks 2 and 3.
func ValidateAmount(op Op, id AccountID, amount int64) error {
	switch {
	case amount < 0:
		return invalid(ErrInvalidAmount, op, id, amount, 0,
			fmt.Sprintf("%s amount must not be negative", op))
	case amount == 0:
		return invalid(ErrInvalidAmount, op, id, amount, 0,
			fmt.Sprintf("%s amount must be greater than zero", op))
	case amount < MinAmount:
		return invalid(ErrAmountOutOfRange, op, id, amount, 0,
			fmt.Sprintf("%s amount must be at least %d", op, MinAmount))
	case amount > MaxAmount:
		return invalid(ErrAmountOutOfRange, op, id, amount, 0,
			fmt.Sprintf("%s amount must be at most %d", op, MaxAmount))
	}
	return nil
}

// ValidateRequest runs checks 1-3.
func ValidateRequest(op Op, id AccountID, amount int64) error {
	if err := ValidateAccount(op, id); err != nil {
		return err
	}
	return ValidateAmount(op, id, amount)
}

// ValidateCharge runs check 4 and returns the projected balance.
func ValidateCharge(id AccountID, current, amount int64) (int64, error) {
	next := current + amount
	if next > MaxPoints {
		return current, invalid(ErrBalanceLimitExceeded, OpCharge, id, amount, current,
			fmt.Sprintf("balance after charge must not exceed %d", MaxPoints))
	}
	return next, nil
}

// ValidateUse runs check 5 and returns the projected balance.
func ValidateUse(id AccountID, current, amount int64) (int64, error) {
	if current < amount {
		return current, invalid(ErrInsufficientBalance, OpUse, id, amount, current,
			"use amount must not exceed the current balance")
	}
	return current - amount, nil
}

func invalid(kind error, op Op, id AccountID, amount, balance int64, msg string) *ValidationError {
	return &ValidationError{
		Kind:      kind,
		Op:        op,
		AccountID: id,
		Amount:    amount,
		Balance:   balance,
		Message:   msg,
	}
}
