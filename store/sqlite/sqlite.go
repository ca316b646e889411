/*
Package sqlite provides a SQLite-backed implementation of the point stores.

INTERFACES IMPLEMENTED:
  point.AccountStore: user_points table
  point.HistoryLog:   point_histories table
  point.TxStore:      balance write + history append in one SQL transaction

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on point_histories
  - Sequence ids come from INTEGER PRIMARY KEY AUTOINCREMENT

KEY TABLES:
  user_points:     one row per account, current balance
  point_histories: immutable log of committed charges and uses

CONCURRENCY:
  The pool is limited to one connection. SQLite allows a single writer and
  each ":memory:" connection would otherwise open a separate database.
  Read-check-write serialization per account is the ledger's job.

TIMESTAMPS:
  Stored as Unix nanoseconds, 0 for the zero time.

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := point.New(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/point-ledger/point"
)

// Store implements point.Backend and point.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ point.Backend = (*Store)(nil)
	_ point.TxStore = (*Store)(nil)
)

// New opens the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := Open(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Open wraps an existing handle and migrates the schema.
func Open(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_points (
		id INTEGER PRIMARY KEY,
		point INTEGER NOT NULL CHECK (point >= 0),
		updated_at INTEGER NOT NULL
	);

	-- Append-only
	CREATE TABLE IF NOT EXISTS point_histories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		type TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_point_histories_user
		ON point_histories(user_id, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNT STORE (point.AccountStore interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, id point.AccountID) (point.UserPoint, bool, error) {
	return getAccount(ctx, s.db, id)
}

func (s *Store) Put(ctx context.Context, id point.AccountID, balance int64, at time.Time) (point.UserPoint, error) {
	return putAccount(ctx, s.db, id, balance, at)
}

func getAccount(ctx context.Context, db execer, id point.AccountID) (point.UserPoint, bool, error) {
	var (
		balance   int64
		updatedAt int64
	)
	err := db.QueryRowContext(ctx,
		"SELECT point, updated_at FROM user_points WHERE id = ?",
		int64(id),
	).Scan(&balance, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return point.UserPoint{}, false, nil
	}
	if err != nil {
		return point.UserPoint{}, false, fmt.Errorf("failed to get account: %w", err)
	}
	return point.UserPoint{ID: id, Point: balance, UpdatedAt: decodeTime(updatedAt)}, true, nil
}

func putAccount(ctx context.Context, db execer, id point.AccountID, balance int64, at time.Time) (point.UserPoint, error) {
	query := `
		INSERT INTO user_points (id, point, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET point = excluded.point, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, int64(id), balance, encodeTime(at)); err != nil {
		return point.UserPoint{}, fmt.Errorf("failed to put account: %w", err)
	}
	return point.UserPoint{ID: id, Point: balance, UpdatedAt: at}, nil
}

// =============================================================================
// HISTORY LOG (point.HistoryLog interface)
// =============================================================================

// Append adds a record. This is the ONLY write to point_histories.
func (s *Store) Append(ctx context.Context, h point.PointHistory) (point.PointHistory, error) {
	return appendHistory(ctx, s.db, h)
}

// ListByAccount returns the account's records in append order.
func (s *Store) ListByAccount(ctx context.Context, id point.AccountID) ([]point.PointHistory, error) {
	return listHistory(ctx, s.db, id)
}

func appendHistory(ctx context.Context, db execer, h point.PointHistory) (point.PointHistory, error) {
	res, err := db.ExecContext(ctx,
		"INSERT INTO point_histories (user_id, amount, type, timestamp) VALUES (?, ?, ?, ?)",
		int64(h.AccountID), h.Amount, string(h.Type), encodeTime(h.Timestamp),
	)
	if err != nil {
		return point.PointHistory{}, fmt.Errorf("failed to append history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return point.PointHistory{}, fmt.Errorf("failed to read history id: %w", err)
	}
	h.ID = id
	return h, nil
}

func listHistory(ctx context.Context, db execer, id point.AccountID) ([]point.PointHistory, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, amount, type, timestamp FROM point_histories WHERE user_id = ? ORDER BY id ASC",
		int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	histories := []point.PointHistory{}
	for rows.Next() {
		var (
			h       point.PointHistory
			userID  int64
			txType  string
			savedAt int64
		)
		if err := rows.Scan(&h.ID, &userID, &h.Amount, &txType, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.AccountID = point.AccountID(userID)
		h.Type = point.TransactionType(txType)
		h.Timestamp = decodeTime(savedAt)
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (point.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(point.AccountStore, point.HistoryLog) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txStore{tx: sqlTx}
	if err := fn(view, view); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Get(ctx context.Context, id point.AccountID) (point.UserPoint, bool, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) Put(ctx context.Context, id point.AccountID, balance int64, at time.Time) (point.UserPoint, error) {
	return putAccount(ctx, ts.tx, id, balance, at)
}

func (ts *txStore) Append(ctx context.Context, h point.PointHistory) (point.PointHistory, error) {
	return appendHistory(ctx, ts.tx, h)
}

func (ts *txStore) ListByAccount(ctx context.Context, id point.AccountID) ([]point.PointHistory, error) {
	return listHistory(ctx, ts.tx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
