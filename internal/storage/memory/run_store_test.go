package memory

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
	store := NewRunStore()
	ctx := context.Background()
	started := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	run := &domain.Run{
		RunID:     "run1",
		Symbol:    "EURUSD",
		Timeframe: domain.Timeframe5Min,
		Status:    domain.RunStatusRunning,
		StartedAt: started,
		Config:    []byte("rsi_period: 29\n"),
	}
	require.NoError(t, store.Insert(ctx, run))
	assert.ErrorIs(t, store.Insert(ctx, run), storage.ErrDuplicateKey)

	finished := started.Add(time.Minute)
	require.NoError(t, store.Finish(ctx, &domain.Run{
		RunID:       "run1",
		Status:      domain.RunStatusCompleted,
		FinishedAt:  &finished,
		Candles:     100,
		Trades:      3,
		FinalEquity: 100250,
	}))

	got, err := store.GetByID(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, "EURUSD", got.Symbol)
	assert.Equal(t, 3, got.Trades)
	assert.Equal(t, []byte("rsi_period: 29\n"), got.Config)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
}

func TestRunStore_FinishUnknown(t *testing.T) {
	store := NewRunStore()

	err := store.Finish(context.Background(), &domain.Run{RunID: "missing"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(ctx, &domain.Run{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].RunID)
	assert.Equal(t, "a", all[2].RunID)

	limited, _ := store.List(ctx, 2)
	assert.Len(t, limited, 2)
}
