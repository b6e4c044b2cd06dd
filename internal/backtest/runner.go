// Package backtest wires the pipeline of one run: load candles, build
// indicator frames, generate signals, simulate, aggregate and persist.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/simulation"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/strategy"
)

// Run modes, used as metric labels.
const (
	ModeBacktest = "backtest"
	ModeSweep    = "sweep"
)

// Stores groups the persistence a Runner needs. Trades, Runs and Summaries
// may be nil, in which case results are returned but not persisted.
type Stores struct {
	Candles   storage.CandleStore
	Trades    storage.TradeRecordStore
	Runs      storage.RunStore
	Summaries storage.SummaryStore
}

// Outcome is everything one run produced.
type Outcome struct {
	Run        *domain.Run
	Signals    signal.Result
	Simulation *simulation.Result
	Summary    *domain.Summary
}

// Runner executes backtests.
type Runner struct {
	stores  Stores
	loader  *Loader
	logger  *zap.Logger
	metrics *observability.Metrics
	mode    string
	newID   func() string
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics sets the metrics sink. A nil sink records nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithMode sets the mode label recorded with run metrics.
func WithMode(mode string) Option {
	return func(r *Runner) {
		r.mode = mode
	}
}

// WithIDGenerator replaces the UUID run ID source.
func WithIDGenerator(f func() string) Option {
	return func(r *Runner) {
		r.newID = f
	}
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner.
func NewRunner(stores Stores, opts ...Option) *Runner {
	r := &Runner{
		stores: stores,
		logger: zap.NewNop(),
		mode:   ModeBacktest,
		newID:  func() string { return uuid.NewString() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.loader = NewLoader(stores.Candles, r.logger)
	return r
}

// Loader returns the candle loader used by Run.
func (r *Runner) Loader() *Loader {
	return r.loader
}

// Run loads the configured series and executes one backtest.
// A load failure is recorded on the run and returned wrapped in ErrNoCandles;
// nothing else is persisted in that case.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (*Outcome, error) {
	run, err := r.begin(ctx, cfg)
	if err != nil {
		return nil, err
	}

	data, err := r.loader.Load(ctx, cfg)
	if err != nil {
		r.fail(ctx, run, err)
		return nil, err
	}
	r.metrics.RecordCandles(len(data.Primary), data.Dropped)

	frames, err := data.Frames(cfg)
	if err != nil {
		r.fail(ctx, run, err)
		return nil, err
	}
	return r.execute(ctx, cfg, run, frames)
}

// Execute runs a backtest over prebuilt frames. Frames are only read,
// so callers may share them between concurrent Execute calls.
func (r *Runner) Execute(ctx context.Context, cfg *config.Config, frames []domain.IndicatorFrame) (*Outcome, error) {
	run, err := r.begin(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, cfg, run, frames)
}

func (r *Runner) begin(ctx context.Context, cfg *config.Config) (*domain.Run, error) {
	snapshot, err := cfg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	run := &domain.Run{
		RunID:     r.newID(),
		Symbol:    cfg.Series.Symbol,
		Timeframe: cfg.Series.Timeframe,
		Label:     cfg.Label(),
		Config:    snapshot,
		Status:    domain.RunStatusRunning,
		StartedAt: r.now().UTC(),
	}
	if r.stores.Runs != nil {
		if err := r.stores.Runs.Insert(ctx, run); err != nil {
			return nil, fmt.Errorf("insert run: %w", err)
		}
	}
	return run, nil
}

func (r *Runner) execute(ctx context.Context, cfg *config.Config, run *domain.Run, frames []domain.IndicatorFrame) (*Outcome, error) {
	logger := r.logger.With(zap.String("run_id", run.RunID), zap.String("label", run.Label))

	if err := ctx.Err(); err != nil {
		r.fail(ctx, run, err)
		return nil, err
	}

	sigCfg, err := cfg.SignalConfig()
	if err != nil {
		r.fail(ctx, run, err)
		return nil, fmt.Errorf("signal config: %w", err)
	}
	signals := signal.Generate(frames, sigCfg)

	rule, err := strategy.FromConfig(cfg.StrategyConfig(), signals.Signals)
	if err != nil {
		r.fail(ctx, run, err)
		return nil, fmt.Errorf("entry rule: %w", err)
	}

	engine, err := simulation.NewEngine(cfg.SimulationConfig(), simulation.WithLogger(logger))
	if err != nil {
		r.fail(ctx, run, err)
		return nil, fmt.Errorf("simulation engine: %w", err)
	}
	sim := engine.Run(run.RunID, frames, rule)

	summary := metrics.Summarize(sim.Ledger, sim.InitialBalance)
	summary.RunID = run.RunID
	summary.Label = run.Label

	if err := r.persist(ctx, sim.Ledger, summary); err != nil {
		r.fail(ctx, run, err)
		return nil, err
	}

	finished := r.now().UTC()
	run.Status = domain.RunStatusCompleted
	run.FinishedAt = &finished
	run.Candles = len(frames)
	run.Signals = len(signals.Signals)
	run.Trades = len(sim.Ledger)
	run.FinalEquity = sim.FinalEquity
	run.MaxDrawdown = sim.MaxDrawdown
	if r.stores.Runs != nil {
		if err := r.stores.Runs.Finish(ctx, run); err != nil {
			return nil, fmt.Errorf("finish run: %w", err)
		}
	}

	r.metrics.RecordSignals(len(signals.Signals), signals.Rejections)
	r.metrics.RecordEntryRejections(sim.Rejections)
	for _, t := range sim.Ledger {
		r.metrics.RecordTradeClosed(t.ExitReason)
	}
	r.metrics.RecordRun(r.mode, run.Status, finished.Sub(run.StartedAt))

	logger.Info("backtest completed",
		zap.Int("candles", run.Candles),
		zap.Int("crossings", signals.Crossings),
		zap.Int("signals", run.Signals),
		zap.Int("trades", run.Trades),
		zap.Float64("net_pnl", summary.TotalNetPnL),
		zap.Float64("final_equity", run.FinalEquity),
		zap.Float64("max_drawdown", run.MaxDrawdown),
		zap.Int("max_open_positions", sim.MaxOpenPositions),
	)

	return &Outcome{
		Run:        run,
		Signals:    signals,
		Simulation: sim,
		Summary:    summary,
	}, nil
}

func (r *Runner) persist(ctx context.Context, ledger []*domain.TradeRecord, summary *domain.Summary) error {
	if r.stores.Trades != nil && len(ledger) > 0 {
		if err := r.stores.Trades.InsertBulk(ctx, ledger); err != nil {
			return fmt.Errorf("insert trade records: %w", err)
		}
	}
	if r.stores.Summaries != nil {
		if err := r.stores.Summaries.Insert(ctx, summary); err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
	}
	return nil
}

// fail marks the run failed. Errors updating the run are logged, not returned,
// so the caller sees the original failure.
func (r *Runner) fail(ctx context.Context, run *domain.Run, cause error) {
	finished := r.now().UTC()
	run.Status = domain.RunStatusFailed
	run.FinishedAt = &finished
	run.Error = cause.Error()

	if r.stores.Runs != nil {
		if err := r.stores.Runs.Finish(context.WithoutCancel(ctx), run); err != nil {
			r.logger.Error("failed to record run failure", zap.String("run_id", run.RunID), zap.Error(err))
		}
	}
	r.metrics.RecordRun(r.mode, run.Status, finished.Sub(run.StartedAt))
	r.logger.Error("backtest failed", zap.String("run_id", run.RunID), zap.Error(cause))
}
