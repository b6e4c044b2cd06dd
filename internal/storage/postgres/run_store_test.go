package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestRunStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	run := testRun("run-1", baseTime)
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)
	assert.Nil(t, got.FinishedAt)

	if err := store.Insert(ctx, run); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	finished := baseTime.Add(3 * time.Second)
	require.NoError(t, store.Finish(ctx, &domain.Run{
		RunID:       "run-1",
		Status:      domain.RunStatusCompleted,
		FinishedAt:  &finished,
		Candles:     1200,
		Signals:     14,
		Trades:      9,
		FinalEquity: 100412.25,
		MaxDrawdown: 0.012,
	}))

	got, err = store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
	assert.Equal(t, 9, got.Trades)
	assert.Equal(t, 100412.25, got.FinalEquity)
	assert.Equal(t, run.Config, got.Config, "finish must not touch the config snapshot")

	err = store.Finish(ctx, &domain.Run{RunID: "missing", Status: domain.RunStatusFailed})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRunStore(pool)

	require.NoError(t, store.Insert(ctx, testRun("b", baseTime)))
	require.NoError(t, store.Insert(ctx, testRun("a", baseTime)))
	require.NoError(t, store.Insert(ctx, testRun("c", baseTime.Add(time.Minute))))

	all, err := store.List(ctx, 0)
	require.NoError(t, err)

	var ids []string
	for _, r := range all {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
