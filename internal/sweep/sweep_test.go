package sweep

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage/memory"
)

func sweepConfig() *config.Config {
	cfg := config.Default()
	cfg.Signals.Windows = nil
	cfg.Signals.RequiredTrend = ""
	cfg.Sweep.LongThresholds = []float64{40, 46, 52}
	cfg.Sweep.ShortThresholds = []float64{55, 60}
	cfg.Sweep.Workers = 3
	return cfg
}

func walk(n int) []domain.Candle {
	rng := rand.New(rand.NewSource(3))
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	price := 32.0
	out := make([]domain.Candle, n)
	for i := range out {
		o := price
		price += rng.NormFloat64() * 0.08
		out[i] = domain.Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      o,
			High:      math.Max(o, price) + rng.Float64()*0.05,
			Low:       math.Min(o, price) - rng.Float64()*0.05,
			Close:     price,
		}
	}
	return out
}

func TestGrid(t *testing.T) {
	grid := Grid(sweepConfig())
	require.Len(t, grid, 6)
	for i, want := range map[int][2]float64{0: {40, 55}, 1: {40, 60}, 5: {52, 60}} {
		assert.Equal(t, i, grid[i].Index)
		assert.Equal(t, want[0], grid[i].LongThreshold)
		assert.Equal(t, want[1], grid[i].ShortThreshold)
	}

	ids := make(map[string]bool)
	for _, c := range grid {
		assert.Len(t, c.ParamsID, 16)
		ids[c.ParamsID] = true
	}
	assert.Len(t, ids, len(grid))
	assert.Equal(t, grid[3].ParamsID, Grid(sweepConfig())[3].ParamsID)

	base := config.Default()
	single := Grid(base)
	require.Len(t, single, 1)
	assert.Equal(t, base.Signals.LongThreshold, single[0].LongThreshold)
	assert.Equal(t, base.Signals.ShortThreshold, single[0].ShortThreshold)
}

func TestRunner_MatchesSequentialRuns(t *testing.T) {
	ctx := context.Background()
	cfg := sweepConfig()

	candles := memory.NewCandleStore()
	require.NoError(t, candles.UpsertBulk(ctx, cfg.SeriesKey(), walk(3000)))
	summaries := memory.NewSummaryStore()
	stores := backtest.Stores{
		Candles:   candles,
		Trades:    memory.NewTradeRecordStore(),
		Runs:      memory.NewRunStore(),
		Summaries: summaries,
	}

	m := observability.NewMetrics("test")
	bt := backtest.NewRunner(stores, backtest.WithMode(backtest.ModeSweep), backtest.WithMetrics(m))
	results, err := NewRunner(bt, nil, m).Run(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, results, 6)

	data, err := bt.Loader().Load(ctx, cfg)
	require.NoError(t, err)
	frames, err := data.Frames(cfg)
	require.NoError(t, err)

	standalone := backtest.NewRunner(backtest.Stores{})
	for i, res := range results {
		assert.Equal(t, i, res.Index, "results must be in grid order")
		require.NotNil(t, res.Summary)

		one := cfg.Clone()
		one.Signals.LongThreshold = res.LongThreshold
		one.Signals.ShortThreshold = res.ShortThreshold
		out, err := standalone.Execute(ctx, one, frames)
		require.NoError(t, err)

		assert.Equal(t, out.Summary.TotalTrades, res.Summary.TotalTrades, "combination %d", i)
		assert.Equal(t, out.Summary.TotalNetPnL, res.Summary.TotalNetPnL, "combination %d", i)
		assert.Equal(t, one.Label(), res.Summary.Label)

		stored, err := summaries.GetByRunID(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, res.Summary.TotalNetPnL, stored.TotalNetPnL)
	}

	assert.Len(t, Summaries(results), 6)
	best, ok := Best(results)
	require.True(t, ok)
	for _, res := range results {
		assert.LessOrEqual(t, res.Summary.TotalNetPnL, best.Summary.TotalNetPnL)
	}
}

type failingSummaryStore struct {
	*memory.SummaryStore
}

func (failingSummaryStore) Insert(context.Context, *domain.Summary) error {
	return errors.New("disk full")
}

func TestRunner_FailureCancelsSweep(t *testing.T) {
	ctx := context.Background()
	cfg := sweepConfig()

	bt := backtest.NewRunner(backtest.Stores{
		Candles:   memory.NewCandleStore(),
		Summaries: failingSummaryStore{memory.NewSummaryStore()},
	})

	results, err := NewRunner(bt, nil, nil).Run(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Nil(t, results)
}

func TestBest_Empty(t *testing.T) {
	_, ok := Best(nil)
	assert.False(t, ok)
}
