package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/storage"
)

// Generator produces reports from stored runs.
type Generator struct {
	runStore         storage.RunStore
	tradeRecordStore storage.TradeRecordStore
	summaryStore     storage.SummaryStore
	now              func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	runStore storage.RunStore,
	tradeStore storage.TradeRecordStore,
	summaryStore storage.SummaryStore,
) *Generator {
	return &Generator{
		runStore:         runStore,
		tradeRecordStore: tradeStore,
		summaryStore:     summaryStore,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report of one run. A missing stored summary is
// recomputed from the ledger.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	trades, err := g.tradeRecordStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	summary, err := g.summaryStore.GetByRunID(ctx, runID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		summary = metrics.Summarize(trades, initialBalance(run, trades))
		summary.RunID = runID
		summary.Label = run.Label
	case err != nil:
		return nil, fmt.Errorf("load summary: %w", err)
	}

	return &Report{
		GeneratedAt: g.now(),
		DataVersion: idhash.ComputeLedgerVersion(trades),
		Run:         run,
		Summary:     summary,
		Trades:      trades,
		ExitReasons: exitReasonRows(trades),
		Roles:       roleRows(trades),
		Conditions:  conditionRows(trades),
	}, nil
}

// initialBalance recovers the starting equity from the final equity and the ledger.
func initialBalance(run *domain.Run, trades []*domain.TradeRecord) float64 {
	total := 0.0
	for _, t := range trades {
		total += t.NetPnL
	}
	return run.FinalEquity - total
}

func exitReasonRows(trades []*domain.TradeRecord) []ExitReasonRow {
	byReason := make(map[string]*ExitReasonRow)
	for _, t := range trades {
		row, ok := byReason[t.ExitReason]
		if !ok {
			row = &ExitReasonRow{Reason: t.ExitReason}
			byReason[t.ExitReason] = row
		}
		row.Trades++
		row.NetPnL += t.NetPnL
		if t.IsWin() {
			row.Wins++
		}
	}

	rows := make([]ExitReasonRow, 0, len(byReason))
	for _, row := range byReason {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Reason < rows[j].Reason })
	return rows
}

func roleRows(trades []*domain.TradeRecord) []RoleRow {
	byRole := make(map[domain.Role]*RoleRow)
	for _, t := range trades {
		row, ok := byRole[t.Role]
		if !ok {
			row = &RoleRow{Role: t.Role}
			byRole[t.Role] = row
		}
		row.Trades++
		row.NetPnL += t.NetPnL
		if t.IsWin() {
			row.Wins++
		}
	}

	rows := make([]RoleRow, 0, len(byRole))
	for _, row := range byRole {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Role < rows[j].Role })
	return rows
}
