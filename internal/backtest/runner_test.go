package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/strategy"
)

var t0 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) domain.Candle {
	return domain.Candle{Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute), Open: o, High: h, Low: l, Close: c}
}

type testEnv struct {
	stores  Stores
	trades  *memory.TradeRecordStore
	runs    *memory.RunStore
	sums    *memory.SummaryStore
	candles *memory.CandleStore
}

func newTestEnv() *testEnv {
	env := &testEnv{
		candles: memory.NewCandleStore(),
		trades:  memory.NewTradeRecordStore(),
		runs:    memory.NewRunStore(),
		sums:    memory.NewSummaryStore(),
	}
	env.stores = Stores{Candles: env.candles, Trades: env.trades, Runs: env.runs, Summaries: env.sums}
	return env
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
}

func ladderConfig() *config.Config {
	cfg := config.Default()
	cfg.Entry.Rule = strategy.RuleLadder
	cfg.Entry.Ladder = config.LadderConfig{DropPct: 0.02, Step: 1, TakeProfit: 1}
	return cfg
}

func TestRunner_LadderTradePersisted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	cfg := ladderConfig()

	require.NoError(t, env.candles.UpsertBulk(ctx, cfg.SeriesKey(), []domain.Candle{
		bar(0, 100, 101, 99, 100),
		bar(1, 98.8, 98.8, 97.5, 98.2), // low crosses 98 = 100 * (1 - 0.02)
		bar(2, 98.2, 99.5, 98.1, 99.2), // high reaches the 99 target
		bar(3, 99.2, 99.4, 99.0, 99.3),
	}))

	runner := NewRunner(env.stores, WithIDGenerator(sequentialIDs()), WithMetrics(observability.NewMetrics("test")))
	out, err := runner.Run(ctx, cfg)
	require.NoError(t, err)

	require.Len(t, out.Simulation.Ledger, 1)
	tr := out.Simulation.Ledger[0]
	assert.Equal(t, domain.RoleLong, tr.Role)
	assert.Equal(t, 98.0, tr.EntryPrice)
	assert.Equal(t, 99.0, tr.ExitPrice)
	assert.Equal(t, domain.ExitReasonTargetHit, tr.ExitReason)
	assert.InDelta(t, 200, tr.NetPnL, 1e-9)

	stored, err := env.trades.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, out.Simulation.Ledger, stored)

	sum, err := env.sums.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalTrades)
	assert.Equal(t, "ladder drop=0.02 step=1 tp=1", sum.Label)

	run, err := env.runs.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, run.Candles)
	assert.Equal(t, 1, run.Trades)
	assert.InDelta(t, 100200, run.FinalEquity, 1e-9)
	require.NotNil(t, run.FinishedAt)
	assert.NotEmpty(t, run.Config)
}

func TestRunner_EmptySeries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	out, err := NewRunner(env.stores, WithIDGenerator(sequentialIDs())).Run(ctx, config.Default())
	require.NoError(t, err)

	assert.Empty(t, out.Simulation.Ledger)
	assert.Equal(t, 0, out.Summary.TotalTrades)
	assert.Equal(t, out.Summary.InitialBalance, out.Summary.FinalEquity)

	run, err := env.runs.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
}

type failingCandleStore struct {
	*memory.CandleStore
}

func (failingCandleStore) GetRange(context.Context, domain.SeriesKey, time.Time, time.Time) ([]domain.Candle, error) {
	return nil, errors.New("connection refused")
}

func TestRunner_LoadFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.stores.Candles = failingCandleStore{memory.NewCandleStore()}

	_, err := NewRunner(env.stores, WithIDGenerator(sequentialIDs())).Run(ctx, config.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCandles), "expected ErrNoCandles, got %v", err)

	run, err := env.runs.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "connection refused")

	trades, err := env.trades.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, trades)
	_, err = env.sums.GetByRunID(ctx, "run-1")
	assert.Error(t, err)
}

func TestLoader_DropsInvalidAndResamples(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	cfg := config.Default()

	candles := []domain.Candle{
		bar(2, 10, 11, 9, 10),
		bar(0, 10, 11, 9, 10),
		bar(1, 10, 9, 11, 10), // low above high
		bar(3, 10, 12, 9, 11),
	}
	require.NoError(t, env.candles.UpsertBulk(ctx, cfg.SeriesKey(), candles))

	data, err := NewLoader(env.candles, nil).Load(ctx, cfg)
	require.NoError(t, err)

	assert.Len(t, data.Primary, 3)
	assert.Equal(t, 1, data.Dropped["invalid"])

	// Trend and both level series fall back to resampling the primary series.
	// Bars at 00:00 and 00:10 share a 15min bucket, 00:15 opens the next.
	require.Len(t, data.Trend, 2)
	assert.Equal(t, 10.0, data.Trend[0].Close)
	assert.Equal(t, 12.0, data.Trend[1].High)
	assert.Equal(t, 11.0, data.Trend[1].Close)
	require.Len(t, data.Levels, 2)
	assert.Len(t, data.Levels[1], 1)
}

func TestLoader_PrefersStoredCoarseSeries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	cfg := config.Default()

	require.NoError(t, env.candles.UpsertBulk(ctx, cfg.SeriesKey(), []domain.Candle{bar(0, 10, 11, 9, 10)}))
	stored := domain.Candle{Timestamp: t0, Open: 20, High: 21, Low: 19, Close: 20}
	trendKey := domain.SeriesKey{Symbol: cfg.Series.Symbol, Timeframe: cfg.Series.TrendTimeframe}
	require.NoError(t, env.candles.UpsertBulk(ctx, trendKey, []domain.Candle{stored}))

	data, err := NewLoader(env.candles, nil).Load(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, data.Trend, 1)
	assert.Equal(t, 20.0, data.Trend[0].Close)
}

func TestLoader_CountsDropsInStoredCoarseSeries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	cfg := config.Default()

	require.NoError(t, env.candles.UpsertBulk(ctx, cfg.SeriesKey(), []domain.Candle{bar(0, 10, 11, 9, 10)}))
	trendKey := domain.SeriesKey{Symbol: cfg.Series.Symbol, Timeframe: cfg.Series.TrendTimeframe}
	require.NoError(t, env.candles.UpsertBulk(ctx, trendKey, []domain.Candle{
		{Timestamp: t0, Open: 20, High: 21, Low: 19, Close: 20},
		{Timestamp: t0.Add(15 * time.Minute), Open: 20, High: 19, Low: 21, Close: 20}, // low above high
	}))

	core, logs := observer.New(zap.WarnLevel)
	data, err := NewLoader(env.candles, zap.New(core)).Load(ctx, cfg)
	require.NoError(t, err)

	require.Len(t, data.Trend, 1)
	assert.Equal(t, 1, data.Dropped["invalid"])

	dropped := logs.FilterMessage("candle dropped").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, trendKey.String(), dropped[0].ContextMap()["series"])
}

// randomWalk builds a day of 5-minute bars with enough movement to cross.
func randomWalk(n int, seed int64) []domain.Candle {
	rng := rand.New(rand.NewSource(seed))
	price := 32.0
	out := make([]domain.Candle, n)
	for i := range out {
		o := price
		price += rng.NormFloat64() * 0.08
		c := price
		h := math.Max(o, c) + rng.Float64()*0.05
		l := math.Min(o, c) - rng.Float64()*0.05
		out[i] = bar(i, o, h, l, c)
	}
	return out
}

func TestRunner_ExecuteSharedFramesDeterministic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	cfg := config.Default()
	cfg.Signals.Windows = nil
	cfg.Signals.RequiredTrend = ""

	require.NoError(t, env.candles.UpsertBulk(ctx, cfg.SeriesKey(), randomWalk(2000, 11)))

	runner := NewRunner(env.stores, WithIDGenerator(sequentialIDs()))
	data, err := runner.Loader().Load(ctx, cfg)
	require.NoError(t, err)
	frames, err := data.Frames(cfg)
	require.NoError(t, err)

	first, err := runner.Execute(ctx, cfg, frames)
	require.NoError(t, err)
	second, err := runner.Execute(ctx, cfg, frames)
	require.NoError(t, err)

	require.Equal(t, len(first.Simulation.Ledger), len(second.Simulation.Ledger))
	for i := range first.Simulation.Ledger {
		a, b := first.Simulation.Ledger[i], second.Simulation.Ledger[i]
		assert.Equal(t, a.PositionID, b.PositionID)
		assert.Equal(t, a.NetPnL, b.NetPnL)
		assert.Equal(t, a.ExitReason, b.ExitReason)
	}
	assert.Equal(t, first.Summary.TotalNetPnL, second.Summary.TotalNetPnL)
	assert.Equal(t, len(first.Signals.Signals), first.Run.Signals)

	runs, err := env.runs.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunner_CancelledContext(t *testing.T) {
	env := newTestEnv()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(env.stores, WithIDGenerator(sequentialIDs())).Execute(ctx, config.Default(), nil)
	assert.ErrorIs(t, err, context.Canceled)

	run, err := env.runs.GetByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
}
