/*
ledger.go - PointLedger, the per-account serialized mutation path

PURPOSE:
  Orchestrates validation, the account store and the history log so that
  each Charge/Use is one logical unit: read, check, write balance, append
  history.

CHARGE / USE PROTOCOL:
  1. Validate account id and amount (no lock needed, fail fast)
  2. Acquire the account's mutex
  3. Read the current balance (absent = 0)
  4. Run the direction check against that balance
  5. Write the new balance and append one history record, same timestamp
  6. Release the mutex, return the new record

  The mutex is held across 3-5. Releasing it between the read and the write
  would let two concurrent Uses both pass check 5 against the same balance.

ATOMIC COMMIT:
  If the backend implements TxStore, step 5 runs inside WithTx. Otherwise the
  balance is written first and, if the append then fails, the previous
  record is written back before the mutex is released. Either way a failed
  operation leaves no mutation behind.

CONCURRENCY:
  One mutex per account, created lazily, never removed. Different accounts
  never share a ledger lock. Balance and History take no ledger lock; the
  stores guarantee a read never observes a half-written record.

EXAMPLE:
  ledger := point.New(store.NewMemory(), point.WithLogger(log))
  p, err := ledger.Charge(ctx, 1, 10_000)
*/
package point

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// POINT LEDGER
// =============================================================================

// PointLedger is safe for concurrent use.
type PointLedger struct {
	accounts AccountStore
	history  HistoryLog
	tx       TxStore // nil when the backend cannot commit atomically

	locks accountLocks
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a PointLedger.
type Option func(*PointLedger)

// WithClock sets the timestamp source for balance and history writes.
func WithClock(now func() time.Time) Option {
	return func(l *PointLedger) { l.now = now }
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *PointLedger) { l.log = log }
}

// WithTxStore makes the ledger commit balance and history through tx.
func WithTxStore(tx TxStore) Option {
	return func(l *PointLedger) { l.tx = tx }
}

// New creates a ledger over a single backend. If the backend implements
// TxStore its transactions are used for commits.
func New(backend Backend, opts ...Option) *PointLedger {
	if tx, ok := backend.(TxStore); ok {
		opts = append([]Option{WithTxStore(tx)}, opts...)
	}
	return NewPointLedger(backend, backend, opts...)
}

// NewPointLedger creates a ledger over separate account and history stores.
func NewPointLedger(accounts AccountStore, history HistoryLog, opts ...Option) *PointLedger {
	l := &PointLedger{
		accounts: accounts,
		history:  history,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Charge adds amount to the account's balance and returns the new record.
func (l *PointLedger) Charge(ctx context.Context, id AccountID, amount int64) (UserPoint, error) {
	return l.mutate(ctx, OpCharge, id, amount)
}

// Use subtracts amount from the account's balance and returns the new record.
func (l *PointLedger) Use(ctx context.Context, id AccountID, amount int64) (UserPoint, error) {
	return l.mutate(ctx, OpUse, id, amount)
}

// Balance returns the account's current record. An account that was never
// written reads as balance 0; reading it does not create it.
func (l *PointLedger) Balance(ctx context.Context, id AccountID) (UserPoint, error) {
	if err := ValidateAccount(OpBalance, id); err != nil {
		return UserPoint{}, err
	}
	rec, ok, err := l.accounts.Get(ctx, id)
	if err != nil {
		return UserPoint{}, l.fault(OpBalance, id, 0, err)
	}
	if !ok {
		return UserPoint{ID: id}, nil
	}
	return rec, nil
}

// History returns the account's history in commit order.
func (l *PointLedger) History(ctx context.Context, id AccountID) ([]PointHistory, error) {
	if err := ValidateAccount(OpHistory, id); err != nil {
		return nil, err
	}
	hs, err := l.history.ListByAccount(ctx, id)
	if err != nil {
		return nil, l.fault(OpHistory, id, 0, err)
	}
	if hs == nil {
		hs = []PointHistory{}
	}
	return hs, nil
}

// =============================================================================
// MUTATION PATH
// =============================================================================

func (l *PointLedger) mutate(ctx context.Context, op Op, id AccountID, amount int64) (UserPoint, error) {
	if err := ValidateRequest(op, id, amount); err != nil {
		l.rejected(err)
		return UserPoint{}, err
	}

	unlock := l.locks.lock(id)
	defer unlock()

	prev, ok, err := l.accounts.Get(ctx, id)
	if err != nil {
		return UserPoint{}, l.fault(op, id, amount, err)
	}
	if !ok {
		prev = UserPoint{ID: id}
	}

	var next int64
	if op == OpCharge {
		next, err = ValidateCharge(id, prev.Point, amount)
	} else {
		next, err = ValidateUse(id, prev.Point, amount)
	}
	if err != nil {
		l.rejected(err)
		return UserPoint{}, err
	}

	at := l.now()
	entry := PointHistory{
		AccountID: id,
		Amount:    amount,
		Type:      op.txType(),
		Timestamp: at,
	}

	updated, err := l.commit(ctx, prev, next, entry)
	if err != nil {
		return UserPoint{}, l.fault(op, id, amount, err)
	}

	l.log.Debug().
		Str("op", string(op)).
		Int64("account_id", int64(id)).
		Int64("amount", amount).
		Int64("balance", updated.Point).
		Msg("points committed")
	return updated, nil
}

// commit writes the balance and appends the history record. Caller holds
// the account lock.
func (l *PointLedger) commit(ctx context.Context, prev UserPoint, balance int64, entry PointHistory) (UserPoint, error) {
	if l.tx != nil {
		var updated UserPoint
		err := l.tx.WithTx(ctx, func(accounts AccountStore, history HistoryLog) error {
			var err error
			if updated, err = accounts.Put(ctx, entry.AccountID, balance, entry.Timestamp); err != nil {
				return err
			}
			_, err = history.Append(ctx, entry)
			return err
		})
		if err != nil {
			return UserPoint{}, err
		}
		return updated, nil
	}

	updated, err := l.accounts.Put(ctx, entry.AccountID, balance, entry.Timestamp)
	if err != nil {
		return UserPoint{}, err
	}
	if _, err := l.history.Append(ctx, entry); err != nil {
		if _, rerr := l.accounts.Put(ctx, prev.ID, prev.Point, prev.UpdatedAt); rerr != nil {
			l.log.Error().Err(rerr).
				Int64("account_id", int64(prev.ID)).
				Int64("balance", prev.Point).
				Msg("failed to restore balance after history append failure")
			return UserPoint{}, errors.Join(err, rerr)
		}
		return UserPoint{}, err
	}
	return updated, nil
}

func (l *PointLedger) fault(op Op, id AccountID, amount int64, err error) error {
	l.log.Error().Err(err).
		Str("op", string(op)).
		Int64("account_id", int64(id)).
		Int64("amount", amount).
		Msg("storage fault")
	return &StorageError{Op: op, AccountID: id, Err: err}
}

func (l *PointLedger) rejected(err error) {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return
	}
	l.log.Debug().
		Str("op", string(verr.Op)).
		Str("code", Code(err)).
		Int64("account_id", int64(verr.AccountID)).
		Int64("amount", verr.Amount).
		Msg(verr.Message)
}
