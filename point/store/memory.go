// Package store provides in-memory point.Backend implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/point-ledger/point"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (default backend, tests)
// =============================================================================

// Memory implements point.AccountStore, point.HistoryLog and point.TxStore.
type Memory struct {
	mu        sync.RWMutex
	accounts  map[point.AccountID]point.UserPoint
	histories map[point.AccountID][]point.PointHistory
	seq       int64
}

var (
	_ point.Backend = (*Memory)(nil)
	_ point.TxStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[point.AccountID]point.UserPoint),
		histories: make(map[point.AccountID][]point.PointHistory),
	}
}

func (m *Memory) Get(_ context.Context, id point.AccountID) (point.UserPoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.accounts[id]
	return rec, ok, nil
}

func (m *Memory) Put(_ context.Context, id point.AccountID, balance int64, at time.Time) (point.UserPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(id, balance, at), nil
}

// Append adds a record and assigns its sequence id. Append-only.
func (m *Memory) Append(_ context.Context, h point.PointHistory) (point.PointHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	h.ID = m.seq
	m.histories[h.AccountID] = append(m.histories[h.AccountID], h)
	return h, nil
}

func (m *Memory) ListByAccount(_ context.Context, id point.AccountID) ([]point.PointHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]point.PointHistory, len(m.histories[id]))
	copy(result, m.histories[id])
	return result, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) putLocked(id point.AccountID, balance int64, at time.Time) point.UserPoint {
	rec := point.UserPoint{ID: id, Point: balance, UpdatedAt: at}
	m.accounts[id] = rec
	return rec
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a buffered view. Writes are applied only when fn
// returns nil; on error they are discarded.
func (m *Memory) WithTx(_ context.Context, fn func(point.AccountStore, point.HistoryLog) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &txMemoryView{
		parent:   m,
		accounts: make(map[point.AccountID]point.UserPoint),
		seq:      m.seq,
	}
	if err := fn(view, view); err != nil {
		return err
	}

	for id, rec := range view.accounts {
		m.accounts[id] = rec
	}
	for _, h := range view.histories {
		m.histories[h.AccountID] = append(m.histories[h.AccountID], h)
	}
	m.seq = view.seq
	return nil
}

// txMemoryView reads through to the parent. The parent lock is held by
// WithTx for the view's whole lifetime.
type txMemoryView struct {
	parent    *Memory
	accounts  map[point.AccountID]point.UserPoint
	histories []point.PointHistory
	seq       int64
}

func (v *txMemoryView) Get(_ context.Context, id point.AccountID) (point.UserPoint, bool, error) {
	if rec, ok := v.accounts[id]; ok {
		return rec, true, nil
	}
	rec, ok := v.parent.accounts[id]
	return rec, ok, nil
}

func (v *txMemoryView) Put(_ context.Context, id point.AccountID, balance int64, at time.Time) (point.UserPoint, error) {
	rec := point.UserPoint{ID: id, Point: balance, UpdatedAt: at}
	v.accounts[id] = rec
	return rec, nil
}

func (v *txMemoryView) Append(_ context.Context, h point.PointHistory) (point.PointHistory, error) {
	v.seq++
	h.ID = v.seq
	v.histories = append(v.histories, h)
	return h, nil
}

func (v *txMemoryView) ListByAccount(_ context.Context, id point.AccountID) ([]point.PointHistory, error) {
	committed := v.parent.histories[id]
	result := make([]point.PointHistory, 0, len(committed))
	result = append(result, committed...)
	for _, h := range v.histories {
		if h.AccountID == id {
			result = append(result, h)
		}
	}
	return result, nil
}
