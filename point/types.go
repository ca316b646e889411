/*
Package point provides the concurrent point ledger.

PURPOSE:
  Holds per-account point balances that are increased by Charge and
  decreased by Use, enforces the amount and balance limits, and records an
  append-only history of every committed mutation.

KEY CONCEPTS IN THIS FILE (types.go):
  - AccountID: positive integer identity of an account
  - UserPoint: the current balance record of one account
  - PointHistory: an immutable record of one committed Charge or Use
  - TransactionType: CHARGE or USE

INVARIANTS:
  1. 0 <= balance <= MaxPoints for every account, at all times
  2. Every successful Charge/Use writes exactly one history record
  3. Rejected operations write nothing
  4. Replaying an account's history over its initial balance gives the
     live balance (no lost updates)

SEE ALSO:
  - policy.go: Validation rules and limits
  - ledger.go: PointLedger, the per-account serialized mutation path
  - store.go: AccountStore / HistoryLog contracts
*/
package point

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountID identifies an account. Valid ids are > 0.
type AccountID int64

// TransactionType is the direction of a history record.
type TransactionType string

const (
	TxCharge TransactionType = "CHARGE"
	TxUse    TransactionType = "USE"
)

// =============================================================================
// BALANCE RECORD
// =============================================================================

// UserPoint is the balance record of one account.
// An account that was never written reads as Point 0 with a zero UpdatedAt.
type UserPoint struct {
	ID        AccountID
	Point     int64
	UpdatedAt time.Time
}

// =============================================================================
// HISTORY RECORD
// =============================================================================

// PointHistory records one committed mutation.
//
// Amount is always positive; Type carries the direction. Timestamp equals the
// UpdatedAt written to the account in the same operation. ID is assigned by
// the HistoryLog at append time and increases with every append.
type PointHistory struct {
	ID        int64
	AccountID AccountID
	Amount    int64
	Type      TransactionType
	Timestamp time.Time
}

// Delta returns the signed change this record applies to the balance.
func (h PointHistory) Delta() int64 {
	if h.Type == TxUse {
		return -h.Amount
	}
	return h.Amount
}

// Replay folds history over an initial balance in the order given.
// For a single account's history in commit order the result equals the live
// balance.
func Replay(initial int64, history []PointHistory) int64 {
	balance := initial
	for _, h := range history {
		balance += h.Delta()
	}
	return balance
}
