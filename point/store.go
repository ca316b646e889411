/*
store.go - Persistence contracts used by the ledger

KEY INTERFACES:
  AccountStore: account id -> balance record, get and unconditional put
  HistoryLog:   append-only log of PointHistory, list by account
  TxStore:      commits a balance write and a history append as one unit

SERIALIZATION:
  Stores are safe for concurrent use but do not serialize read-check-write
  sequences. PointLedger holds the account lock across Get, Put and Append.

IMPLEMENTATIONS:
  - point/store/memory.go: in-memory (default)
  - store/sqlite/sqlite.go: SQLite
  - store/redis/redis.go: Redis
*/
package point

import (
	"context"
	"time"
)

// AccountStore holds the current balance of every account.
type AccountStore interface {
	// Get returns the account record. ok is false when the account has
	// never been written.
	Get(ctx context.Context, id AccountID) (rec UserPoint, ok bool, err error)

	// Put overwrites the account record unconditionally.
	Put(ctx context.Context, id AccountID, balance int64, at time.Time) (UserPoint, error)
}

// HistoryLog is the append-only transaction log.
// No Update, no Delete.
type HistoryLog interface {
	// Append assigns the next sequence id, stores the record and returns it.
	Append(ctx context.Context, h PointHistory) (PointHistory, error)

	// ListByAccount returns the account's records in append order.
	ListByAccount(ctx context.Context, id AccountID) ([]PointHistory, error)
}

// Backend is a single store serving both contracts.
type Backend interface {
	AccountStore
	HistoryLog
}

// TxStore commits writes atomically.
// If fn returns an error none of its writes become visible.
type TxStore interface {
	WithTx(ctx context.Context, fn func(accounts AccountStore, history HistoryLog) error) error
}
