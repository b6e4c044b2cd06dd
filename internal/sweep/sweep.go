// Package sweep evaluates a grid of signal thresholds over one set of
// indicator frames, running independent simulations in parallel.
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/observability"
)

// Combination statuses, used as metric labels.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Combination is one grid point.
type Combination struct {
	Index          int    // position in grid order
	ParamsID       string // stable across sweeps of the same series
	LongThreshold  float64
	ShortThreshold float64
}

// Result is the outcome of one combination.
type Result struct {
	Combination
	RunID   string
	Signals int
	Summary *domain.Summary
}

// Grid returns the Cartesian product of the configured thresholds,
// long-major. An empty axis falls back to the single base threshold.
func Grid(cfg *config.Config) []Combination {
	longs := cfg.Sweep.LongThresholds
	if len(longs) == 0 {
		longs = []float64{cfg.Signals.LongThreshold}
	}
	shorts := cfg.Sweep.ShortThresholds
	if len(shorts) == 0 {
		shorts = []float64{cfg.Signals.ShortThreshold}
	}

	grid := make([]Combination, 0, len(longs)*len(shorts))
	for _, l := range longs {
		for _, s := range shorts {
			grid = append(grid, Combination{
				Index:          len(grid),
				ParamsID:       idhash.ComputeParamsID(cfg.Series.Symbol, string(cfg.Series.Timeframe), map[string]float64{"long": l, "short": s}),
				LongThreshold:  l,
				ShortThreshold: s,
			})
		}
	}
	return grid
}

// Runner executes sweeps on top of a backtest runner.
type Runner struct {
	backtest *backtest.Runner
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a sweep runner. The backtest runner should be built
// with backtest.WithMode(backtest.ModeSweep) so run metrics are labeled.
func NewRunner(bt *backtest.Runner, logger *zap.Logger, m *observability.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{backtest: bt, logger: logger, metrics: m}
}

// Run loads the series once, builds frames once and evaluates the grid.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) ([]Result, error) {
	data, err := r.backtest.Loader().Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordCandles(len(data.Primary), data.Dropped)

	frames, err := data.Frames(cfg)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, cfg, frames)
}

// Execute evaluates every grid combination over frames. Results are in grid
// order regardless of completion order. The first failure cancels the
// combinations not yet started and is returned.
func (r *Runner) Execute(ctx context.Context, cfg *config.Config, frames []domain.IndicatorFrame) ([]Result, error) {
	grid := Grid(cfg)
	results := make([]Result, len(grid))

	workers := cfg.Sweep.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	r.logger.Info("sweep started",
		zap.Int("combinations", len(grid)),
		zap.Int("workers", workers),
		zap.Int("candles", len(frames)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, c := range grid {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			runCfg := cfg.Clone()
			runCfg.Signals.LongThreshold = c.LongThreshold
			runCfg.Signals.ShortThreshold = c.ShortThreshold

			out, err := r.backtest.Execute(gctx, runCfg, frames)
			if err != nil {
				r.metrics.RecordSweepCombination(StatusFailed)
				return fmt.Errorf("combination %s: %w", runCfg.Label(), err)
			}
			r.metrics.RecordSweepCombination(StatusCompleted)

			results[c.Index] = Result{
				Combination: c,
				RunID:       out.Run.RunID,
				Signals:     out.Run.Signals,
				Summary:     out.Summary,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Info("sweep completed",
		zap.Int("combinations", len(grid)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

// Summaries returns the summaries of results in grid order.
func Summaries(results []Result) []*domain.Summary {
	out := make([]*domain.Summary, 0, len(results))
	for _, res := range results {
		if res.Summary != nil {
			out = append(out, res.Summary)
		}
	}
	return out
}

// Best returns the result with the highest total net P&L. Ties keep the
// earlier grid position. ok is false for an empty slice.
func Best(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	best := results[0]
	for _, res := range results[1:] {
		if res.Summary != nil && (best.Summary == nil || res.Summary.TotalNetPnL > best.Summary.TotalNetPnL) {
			best = res
		}
	}
	return best, true
}
