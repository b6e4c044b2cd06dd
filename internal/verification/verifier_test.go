package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/simulation"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/strategy"
)

var t0 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

func record(id int, exitMin int, net, equity float64) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:     "t",
		PositionID:  id,
		Role:        domain.RoleLong,
		Direction:   domain.DirectionLong,
		EntryTime:   t0,
		ExitTime:    t0.Add(time.Duration(exitMin) * time.Minute),
		Target:      1,
		GrossPnL:    net,
		NetPnL:      net,
		EquityAfter: equity,
		ExitReason:  domain.ExitReasonTargetHit,
	}
}

func rules(vs []Violation) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Rule)
	}
	return out
}

func TestCheckLedger_Clean(t *testing.T) {
	ledger := []*domain.TradeRecord{
		record(1, 10, 50, 1050),
		record(2, 10, -20, 1030),
		record(3, 20, 5, 1035),
	}
	assert.Empty(t, CheckLedger(ledger, 1000, 0.02))
	assert.Empty(t, CheckLedger(nil, 1000, 0))
}

func TestCheckLedger_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l []*domain.TradeRecord)
		dd     float64
		want   string
	}{
		{"equity", func(l []*domain.TradeRecord) { l[1].EquityAfter = 999 }, 0, RuleEquity},
		{"net composition", func(l []*domain.TradeRecord) { l[0].Fee = 1 }, 0, RuleNetPnL},
		{"negative adverse", func(l []*domain.TradeRecord) { l[0].MaxAdverseExcursion = -1 }, 0, RuleAdverse},
		{"exit before entry", func(l []*domain.TradeRecord) { l[0].EntryTime = l[0].ExitTime.Add(time.Minute) }, 0, RuleExitAfterEntry},
		{"duplicate id", func(l []*domain.TradeRecord) { l[1].PositionID = 1 }, 0, RuleUniqueID},
		{"close order", func(l []*domain.TradeRecord) { l[1].ExitTime = t0 }, 0, RuleCloseOrder},
		{"fee at data end", func(l []*domain.TradeRecord) {
			l[1].ExitReason = domain.ExitReasonStillOpenAtDataEnd
			l[1].Fee = 2
			l[1].GrossPnL = l[1].NetPnL + 2
		}, 0, RuleOpenAtEndFee},
		{"drawdown", func(l []*domain.TradeRecord) {}, 1.5, RuleDrawdown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := []*domain.TradeRecord{
				record(1, 10, 50, 1050),
				record(2, 20, -20, 1030),
			}
			tt.mutate(ledger)
			got := rules(CheckLedger(ledger, 1000, tt.dd))
			assert.Contains(t, got, tt.want)
		})
	}
}

// firstCandleRule opens its orders on the first candle.
type firstCandleRule []strategy.Order

func (r firstCandleRule) ID() string { return "FIRST_CANDLE" }

func (r firstCandleRule) Propose(in *strategy.CandleInput) []strategy.Proposal {
	if in.Index != 0 {
		return nil
	}
	out := make([]strategy.Proposal, len(r))
	for i := range r {
		out[i] = strategy.Proposal{Order: &r[i]}
	}
	return out
}

func TestCheckLedger_DataEndClosesInterleaveWithLastCandleExits(t *testing.T) {
	ctx := context.Background()
	frame := func(min int, o, h, l, c float64) domain.IndicatorFrame {
		return domain.IndicatorFrame{Candle: domain.Candle{Timestamp: t0.Add(time.Duration(min) * time.Minute), Open: o, High: h, Low: l, Close: c}}
	}
	frames := []domain.IndicatorFrame{
		frame(0, 100, 100, 100, 100),
		frame(5, 100, 101, 99, 100),
		frame(10, 100, 106, 99, 104), // reaches position 2's target only
	}
	rule := firstCandleRule{
		{Role: domain.RoleLong, EntryPrice: 100, Size: 1, Target: 120},
		{Role: domain.RoleLong, EntryPrice: 100, Size: 1, Target: 105},
	}

	engine, err := simulation.NewEngine(simulation.Config{InitialBalance: 1000, PipValue: 1})
	require.NoError(t, err)
	res := engine.Run("run-end", frames, rule)

	require.Len(t, res.Ledger, 2)
	assert.Equal(t, 1, res.Ledger[0].PositionID)
	assert.Equal(t, domain.ExitReasonStillOpenAtDataEnd, res.Ledger[0].ExitReason)
	assert.Equal(t, 2, res.Ledger[1].PositionID)
	assert.Equal(t, domain.ExitReasonTargetHit, res.Ledger[1].ExitReason)
	assert.Empty(t, CheckLedger(res.Ledger, 1000, res.MaxDrawdown))

	// the stored order matches the engine's, so equity still chains
	trades := memory.NewTradeRecordStore()
	require.NoError(t, trades.InsertBulk(ctx, res.Ledger))
	stored, err := trades.GetByRunID(ctx, "run-end")
	require.NoError(t, err)
	assert.Empty(t, CheckLedger(stored, 1000, res.MaxDrawdown))
}

func TestCompareTradeRecords(t *testing.T) {
	a := record(1, 10, 50, 1050)
	a.Stop = ptr(0.5)
	b := *a
	b.Stop = ptr(0.5)
	assert.Empty(t, CompareTradeRecords(a, &b))

	b.NetPnL += 1e-9
	assert.Empty(t, CompareTradeRecords(a, &b), "within tolerance")

	b.NetPnL += 1
	b.Stop = nil
	b.ExitReason = domain.ExitReasonStopHit
	var fields []string
	for _, d := range CompareTradeRecords(a, &b) {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"NetPnL", "Stop", "ExitReason"}, fields)
}

func TestCompareLedgers_MissingAndUnexpected(t *testing.T) {
	stored := []*domain.TradeRecord{record(1, 10, 50, 1050), record(3, 20, 5, 1055)}
	replayed := []*domain.TradeRecord{record(1, 10, 50, 1050), record(2, 15, 5, 1055)}

	report := CompareLedgers("run", stored, replayed)
	assert.Equal(t, 2, report.TotalTrades)
	assert.Equal(t, 1, report.MatchedTrades)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 1, report.Unexpected)
	assert.False(t, report.OK())
}

type fixture struct {
	runs    *memory.RunStore
	trades  *memory.TradeRecordStore
	candles *memory.CandleStore
	cfg     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		runs:    memory.NewRunStore(),
		trades:  memory.NewTradeRecordStore(),
		candles: memory.NewCandleStore(),
		cfg:     config.Default(),
	}
	f.cfg.Entry.Rule = strategy.RuleLadder
	f.cfg.Entry.Ladder = config.LadderConfig{DropPct: 0.02, Step: 1, TakeProfit: 1}

	bar := func(i int, o, h, l, c float64) domain.Candle {
		return domain.Candle{Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute), Open: o, High: h, Low: l, Close: c}
	}
	require.NoError(t, f.candles.UpsertBulk(ctx, f.cfg.SeriesKey(), []domain.Candle{
		bar(0, 100, 101, 99, 100),
		bar(1, 98.8, 98.8, 97.5, 98.2),
		bar(2, 98.2, 98.6, 96.8, 97.0),
		bar(3, 97.0, 99.5, 96.9, 99.2),
		bar(4, 99.2, 99.4, 99.0, 99.3),
	}))
	return f
}

func (f *fixture) verifier() *ReplayVerifier {
	return NewReplayVerifier(ReplayVerifierOptions{
		RunStore:    f.runs,
		TradeStore:  f.trades,
		CandleStore: f.candles,
	})
}

func TestReplayVerifier_StoredRunMatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	runner := backtest.NewRunner(backtest.Stores{
		Candles: f.candles,
		Trades:  f.trades,
		Runs:    f.runs,
	}, backtest.WithIDGenerator(func() string { return "run-1" }))
	out, err := runner.Run(ctx, f.cfg)
	require.NoError(t, err)
	require.NotEmpty(t, out.Simulation.Ledger)

	report, err := f.verifier().VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, report.OK(), "report: %+v", report)
	assert.Equal(t, len(out.Simulation.Ledger), report.MatchedTrades)
}

func TestReplayVerifier_DetectsTamperedLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Compute the honest ledger without persisting it.
	out, err := backtest.NewRunner(backtest.Stores{Candles: f.candles},
		backtest.WithIDGenerator(func() string { return "run-1" })).Run(ctx, f.cfg)
	require.NoError(t, err)
	require.NotEmpty(t, out.Simulation.Ledger)

	snapshot, err := f.cfg.Marshal()
	require.NoError(t, err)
	finished := t0.Add(time.Hour)
	require.NoError(t, f.runs.Insert(ctx, &domain.Run{
		RunID:       "run-1",
		Symbol:      f.cfg.Series.Symbol,
		Timeframe:   f.cfg.Series.Timeframe,
		Config:      snapshot,
		Status:      domain.RunStatusCompleted,
		StartedAt:   t0,
		FinishedAt:  &finished,
		MaxDrawdown: out.Simulation.MaxDrawdown,
	}))

	tampered := make([]*domain.TradeRecord, len(out.Simulation.Ledger))
	for i, tr := range out.Simulation.Ledger {
		c := *tr
		tampered[i] = &c
	}
	tampered[0].NetPnL += 10
	require.NoError(t, f.trades.InsertBulk(ctx, tampered))

	report, err := f.verifier().VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 1, report.DivergentTrades)
	assert.Contains(t, rules(report.Violations), RuleNetPnL)
	assert.Contains(t, rules(report.Violations), RuleEquity)
}

func TestReplayVerifier_UnknownRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier().VerifyRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
