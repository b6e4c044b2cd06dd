package verification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ErrRunNotFound is returned when the run ID doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// ReplayVerifier re-executes a stored run from its config snapshot and
// compares the result with the stored ledger.
type ReplayVerifier struct {
	runs    storage.RunStore
	trades  storage.TradeRecordStore
	candles storage.CandleStore
	logger  *zap.Logger
}

// ReplayVerifierOptions contains the stores a ReplayVerifier reads.
type ReplayVerifierOptions struct {
	RunStore    storage.RunStore
	TradeStore  storage.TradeRecordStore
	CandleStore storage.CandleStore
	Logger      *zap.Logger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayVerifier{
		runs:    opts.RunStore,
		trades:  opts.TradeStore,
		candles: opts.CandleStore,
		logger:  logger,
	}
}

// VerifyRun checks the stored ledger's invariants and replays the run.
// The replay reuses the run ID so deterministic trade IDs are comparable.
// Nothing is written.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*Report, error) {
	run, err := v.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, fmt.Errorf("run %s is %s, only completed runs can be verified", runID, run.Status)
	}

	cfg, err := config.Parse(run.Config)
	if err != nil {
		return nil, fmt.Errorf("parse config snapshot: %w", err)
	}

	stored, err := v.trades.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get stored ledger: %w", err)
	}

	replayer := backtest.NewRunner(
		backtest.Stores{Candles: v.candles},
		backtest.WithIDGenerator(func() string { return runID }),
		backtest.WithLogger(v.logger),
	)
	out, err := replayer.Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	report := CompareLedgers(runID, stored, out.Simulation.Ledger)
	report.Violations = CheckLedger(stored, cfg.Account.InitialBalance, run.MaxDrawdown)

	v.logger.Info("run verified",
		zap.String("run_id", runID),
		zap.Int("trades", report.TotalTrades),
		zap.Int("matched", report.MatchedTrades),
		zap.Int("divergent", report.DivergentTrades),
		zap.Int("missing", report.Missing),
		zap.Int("unexpected", report.Unexpected),
		zap.Int("violations", len(report.Violations)),
	)
	return report, nil
}
