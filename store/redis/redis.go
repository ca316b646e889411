/*
Package redis provides a Redis-backed implementation of the point stores.

KEYS:
  point:account:<id>  JSON {"point":n,"updated_at":nanos}, no expiry
  point:history:<id>  list of JSON history records, RPUSH only
  point:history:seq   INCR counter for history ids

TRANSACTIONS:
  WithTx buffers balance writes and history pushes and applies them with one
  Lua script. The script checks every key's type before its first write,
  so a WRONGTYPE key fails the commit with nothing applied. MULTI/EXEC is
  not used because it keeps earlier commands when a later one fails.
  History ids are reserved with INCR before the script runs, so a discarded
  transaction leaves a gap in the sequence. Ids stay unique and increasing.
  Reads inside the transaction see committed state, not buffered writes.

CONCURRENCY:
  Per-account serialization is done by the ledger in this process. Several
  processes writing the same account need a distributed lock, which this
  package does not provide.

USAGE:
  store, err := redis.New(ctx, redis.Options{Addr: "localhost:6379"})
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := point.New(store)
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/warp/point-ledger/point"
)

const (
	accountPrefix = "point:account:"
	historyPrefix = "point:history:"
	historySeqKey = "point:history:seq"
)

// Options holds the connection settings.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store implements point.Backend and point.TxStore on Redis.
type Store struct {
	rdb *goredis.Client
}

var (
	_ point.Backend = (*Store)(nil)
	_ point.TxStore = (*Store)(nil)
)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

type accountRecord struct {
	Point     int64 `json:"point"`
	UpdatedAt int64 `json:"updated_at"`
}

type historyRecord struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Amount    int64  `json:"amount"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func accountKey(id point.AccountID) string {
	return accountPrefix + strconv.FormatInt(int64(id), 10)
}

func historyKey(id point.AccountID) string {
	return historyPrefix + strconv.FormatInt(int64(id), 10)
}

// =============================================================================
// ACCOUNT STORE (point.AccountStore interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, id point.AccountID) (point.UserPoint, bool, error) {
	raw, err := s.rdb.Get(ctx, accountKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return point.UserPoint{}, false, nil
	}
	if err != nil {
		return point.UserPoint{}, false, fmt.Errorf("failed to get account: %w", err)
	}

	var rec accountRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return point.UserPoint{}, false, fmt.Errorf("failed to decode account %d: %w", id, err)
	}
	return point.UserPoint{ID: id, Point: rec.Point, UpdatedAt: decodeTime(rec.UpdatedAt)}, true, nil
}

func (s *Store) Put(ctx context.Context, id point.AccountID, balance int64, at time.Time) (point.UserPoint, error) {
	if err := putAccount(ctx, s.rdb, id, balance, at); err != nil {
		return point.UserPoint{}, err
	}
	return point.UserPoint{ID: id, Point: balance, UpdatedAt: at}, nil
}

func putAccount(ctx context.Context, c goredis.Cmdable, id point.AccountID, balance int64, at time.Time) error {
	raw, err := encodeAccount(balance, at)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, accountKey(id), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

func encodeAccount(balance int64, at time.Time) (string, error) {
	raw, err := json.Marshal(accountRecord{Point: balance, UpdatedAt: encodeTime(at)})
	if err != nil {
		return "", fmt.Errorf("failed to encode account: %w", err)
	}
	return string(raw), nil
}

// =============================================================================
// HISTORY LOG (point.HistoryLog interface)
// =============================================================================

// Append reserves an id and pushes the record onto the account's list.
func (s *Store) Append(ctx context.Context, h point.PointHistory) (point.PointHistory, error) {
	h, err := s.reserve(ctx, h)
	if err != nil {
		return point.PointHistory{}, err
	}
	if err := pushHistory(ctx, s.rdb, h); err != nil {
		return point.PointHistory{}, err
	}
	return h, nil
}

// ListByAccount returns the account's records in append order.
func (s *Store) ListByAccount(ctx context.Context, id point.AccountID) ([]point.PointHistory, error) {
	raws, err := s.rdb.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	histories := make([]point.PointHistory, 0, len(raws))
	for _, raw := range raws {
		var rec historyRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode history for account %d: %w", id, err)
		}
		histories = append(histories, point.PointHistory{
			ID:        rec.ID,
			AccountID: point.AccountID(rec.UserID),
			Amount:    rec.Amount,
			Type:      point.TransactionType(rec.Type),
			Timestamp: decodeTime(rec.Timestamp),
		})
	}
	return histories, nil
}

func (s *Store) reserve(ctx context.Context, h point.PointHistory) (point.PointHistory, error) {
	id, err := s.rdb.Incr(ctx, historySeqKey).Result()
	if err != nil {
		return point.PointHistory{}, fmt.Errorf("failed to reserve history id: %w", err)
	}
	h.ID = id
	return h, nil
}

func pushHistory(ctx context.Context, c goredis.Cmdable, h point.PointHistory) error {
	raw, err := encodeHistory(h)
	if err != nil {
		return err
	}
	if err := c.RPush(ctx, historyKey(h.AccountID), raw).Err(); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func encodeHistory(h point.PointHistory) (string, error) {
	raw, err := json.Marshal(historyRecord{
		ID:        h.ID,
		UserID:    int64(h.AccountID),
		Amount:    h.Amount,
		Type:      string(h.Type),
		Timestamp: encodeTime(h.Timestamp),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode history: %w", err)
	}
	return string(raw), nil
}

// =============================================================================
// TRANSACTIONAL STORE (point.TxStore interface)
// =============================================================================

// commitScript applies buffered writes. KEYS[i] pairs with ARGV[2i-1] (the
// command, "set" or "rpush") and ARGV[2i] (the value). All types are checked
// before anything is written.
const commitLua = `
for i, key in ipairs(KEYS) do
  local want = 'list'
  if ARGV[2*i-1] == 'set' then want = 'string' end
  local t = redis.call('TYPE', key).ok
  if t ~= 'none' and t ~= want then
    return redis.error_reply('WRONGTYPE ' .. key .. ' holds ' .. t)
  end
end
for i, key in ipairs(KEYS) do
  if ARGV[2*i-1] == 'set' then
    redis.call('SET', key, ARGV[2*i])
  else
    redis.call('RPUSH', key, ARGV[2*i])
  end
end
return #KEYS
`

var commitScript = goredis.NewScript(commitLua)

const (
	opSet   = "set"
	opRPush = "rpush"
)

// WithTx runs fn against a buffering view. Nothing buffered by fn is
// applied unless fn returns nil and the commit script succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(point.AccountStore, point.HistoryLog) error) error {
	view := &txStore{store: s}
	if err := fn(view, view); err != nil {
		return err
	}
	if len(view.keys) == 0 {
		return nil
	}
	if err := commitScript.Run(ctx, s.rdb, view.keys, view.args...).Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	store *Store
	keys  []string
	args  []interface{}
}

func (ts *txStore) queue(op, key, value string) {
	ts.keys = append(ts.keys, key)
	ts.args = append(ts.args, op, value)
}

func (ts *txStore) Get(ctx context.Context, id point.AccountID) (point.UserPoint, bool, error) {
	return ts.store.Get(ctx, id)
}

func (ts *txStore) Put(ctx context.Context, id point.AccountID, balance int64, at time.Time) (point.UserPoint, error) {
	raw, err := encodeAccount(balance, at)
	if err != nil {
		return point.UserPoint{}, err
	}
	ts.queue(opSet, accountKey(id), raw)
	return point.UserPoint{ID: id, Point: balance, UpdatedAt: at}, nil
}

func (ts *txStore) Append(ctx context.Context, h point.PointHistory) (point.PointHistory, error) {
	h, err := ts.store.reserve(ctx, h)
	if err != nil {
		return point.PointHistory{}, err
	}
	raw, err := encodeHistory(h)
	if err != nil {
		return point.PointHistory{}, err
	}
	ts.queue(opRPush, historyKey(h.AccountID), raw)
	return h, nil
}

func (ts *txStore) ListByAccount(ctx context.Context, id point.AccountID) ([]point.PointHistory, error) {
	return ts.store.ListByAccount(ctx, id)
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
