package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

var (
	t0      = time.Date(2025, 4, 1, 4, 0, 0, 0, time.UTC)
	silver5 = domain.SeriesKey{Symbol: "XAGUSD", Timeframe: domain.Timeframe5Min}
)

func candleAt(i int, close float64) domain.Candle {
	return domain.Candle{
		Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
		Open:      close - 0.01,
		High:      close + 0.02,
		Low:       close - 0.03,
		Close:     close,
	}
}

func TestCandleStore_UpsertAndRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	require.NoError(t, store.UpsertBulk(ctx, silver5, []domain.Candle{
		candleAt(2, 32.3), candleAt(0, 32.1), candleAt(1, 32.2), candleAt(3, 32.4),
	}))

	all, err := store.GetRange(ctx, silver5, t0, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, c := range all {
		assert.True(t, c.Timestamp.Equal(candleAt(i, 0).Timestamp), "candle %d out of order", i)
	}

	bounded, err := store.GetRange(ctx, silver5, candleAt(1, 0).Timestamp, candleAt(2, 0).Timestamp)
	require.NoError(t, err)
	require.Len(t, bounded, 2, "range is inclusive on both ends")
	assert.Equal(t, 32.2, bounded[0].Close)
	assert.Equal(t, 32.3, bounded[1].Close)
}

func TestCandleStore_LastWriteWins(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	require.NoError(t, store.UpsertBulk(ctx, silver5, []domain.Candle{candleAt(0, 32.1), candleAt(1, 32.2)}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.UpsertBulk(ctx, silver5, []domain.Candle{candleAt(1, 33.0)}))

	got, err := store.GetRange(ctx, silver5, t0, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 33.0, got[1].Close)
}

func TestCandleStore_ListSeries(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(conn)

	gold := domain.SeriesKey{Symbol: "XAUUSD", Timeframe: domain.Timeframe5Min}
	silver4h := domain.SeriesKey{Symbol: "XAGUSD", Timeframe: domain.Timeframe4Hour}

	require.NoError(t, store.UpsertBulk(ctx, gold, []domain.Candle{candleAt(0, 2300)}))
	require.NoError(t, store.UpsertBulk(ctx, silver5, []domain.Candle{candleAt(0, 32.1)}))
	require.NoError(t, store.UpsertBulk(ctx, silver4h, []domain.Candle{candleAt(0, 32.1)}))

	keys, err := store.ListSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SeriesKey{silver4h, silver5, gold}, keys)

	assert.ErrorIs(t, store.UpsertBulk(ctx, domain.SeriesKey{}, []domain.Candle{candleAt(0, 1)}), storage.ErrInvalidInput)
}
