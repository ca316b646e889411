package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/point-ledger/point"
)

func TestMemory_GetPut(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	rec, err := m.Put(ctx, 1, 5_000, at)
	require.NoError(t, err)
	assert.Equal(t, point.UserPoint{ID: 1, Point: 5_000, UpdatedAt: at}, rec)

	got, ok, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestMemory_AppendAssignsIncreasingIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Append(ctx, point.PointHistory{AccountID: point.AccountID(i%2 + 1), Amount: 1_000, Type: point.TxCharge})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, id := range []point.AccountID{1, 2} {
		hs, err := m.ListByAccount(ctx, id)
		require.NoError(t, err)
		assert.Len(t, hs, 50)
		for i, h := range hs {
			assert.False(t, seen[h.ID], "ids are unique")
			seen[h.ID] = true
			if i > 0 {
				assert.Greater(t, h.ID, hs[i-1].ID, "list is in append order")
			}
		}
	}
}

func TestMemory_ListIsACopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.Append(ctx, point.PointHistory{AccountID: 1, Amount: 1_000, Type: point.TxCharge})
	require.NoError(t, err)

	hs, err := m.ListByAccount(ctx, 1)
	require.NoError(t, err)
	hs[0].Amount = 0

	again, err := m.ListByAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), again[0].Amount)
}

func TestMemory_WithTxCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(accounts point.AccountStore, history point.HistoryLog) error {
		if _, err := accounts.Put(ctx, 1, 2_000, time.Time{}); err != nil {
			return err
		}
		rec, ok, err := accounts.Get(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok, "view sees its own writes")
		assert.Equal(t, int64(2_000), rec.Point)

		h, err := history.Append(ctx, point.PointHistory{AccountID: 1, Amount: 2_000, Type: point.TxCharge})
		assert.Equal(t, int64(1), h.ID)
		return err
	})
	require.NoError(t, err)

	rec, ok, _ := m.Get(ctx, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(2_000), rec.Point)

	hs, _ := m.ListByAccount(ctx, 1)
	require.Len(t, hs, 1)

	h, err := m.Append(ctx, point.PointHistory{AccountID: 1, Amount: 1_000, Type: point.TxUse})
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.ID, "sequence continues after the transaction")
}

func TestMemory_WithTxRollsBack(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.Put(ctx, 1, 5_000, time.Time{})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = m.WithTx(ctx, func(accounts point.AccountStore, history point.HistoryLog) error {
		_, _ = accounts.Put(ctx, 1, 9_000, time.Time{})
		_, _ = history.Append(ctx, point.PointHistory{AccountID: 1, Amount: 4_000, Type: point.TxCharge})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, _, _ := m.Get(ctx, 1)
	assert.Equal(t, int64(5_000), rec.Point)
	hs, _ := m.ListByAccount(ctx, 1)
	assert.Empty(t, hs)

	h, err := m.Append(ctx, point.PointHistory{AccountID: 1, Amount: 1_000, Type: point.TxCharge})
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.ID, "rolled back ids are not consumed")
}
