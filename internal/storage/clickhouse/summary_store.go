package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// SummaryStore implements storage.SummaryStore using ClickHouse.
// The monthly and cluster tables are kept as JSON strings next to the scalar columns.
type SummaryStore struct {
	conn *Conn
}

// NewSummaryStore creates a new SummaryStore.
func NewSummaryStore(conn *Conn) *SummaryStore {
	return &SummaryStore{conn: conn}
}

const summaryColumns = `
	run_id, label,
	total_trades, still_open, wins, losses, win_rate, max_consecutive_losses,
	total_net_pnl, avg_net_pnl, median_net_pnl, stddev_net_pnl, min_net_pnl, max_net_pnl,
	avg_win, avg_loss, gross_profit, gross_loss, profit_factor,
	total_financing, total_fees,
	initial_balance, final_equity, return_pct, max_drawdown, avg_holding_hours,
	monthly, clusters`

// Insert adds a summary. Returns ErrDuplicateKey if run_id exists.
func (s *SummaryStore) Insert(ctx context.Context, sum *domain.Summary) error {
	if sum == nil || sum.RunID == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree has no unique key, so append-only semantics are checked here.
	exists, err := s.exists(ctx, sum.RunID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	monthly, err := json.Marshal(sum.Monthly)
	if err != nil {
		return fmt.Errorf("encode monthly rows: %w", err)
	}
	clusters, err := json.Marshal(sum.Clusters)
	if err != nil {
		return fmt.Errorf("encode cluster rows: %w", err)
	}

	// Batch append uses the binary protocol, which carries +Inf profit factors intact.
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO run_summaries (`+summaryColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	err = batch.Append(
		sum.RunID, sum.Label,
		uint32(sum.TotalTrades), uint32(sum.StillOpen), uint32(sum.Wins), uint32(sum.Losses),
		sum.WinRate, uint32(sum.MaxConsecutiveLosses),
		sum.TotalNetPnL, sum.AvgNetPnL, sum.MedianNetPnL, sum.StddevNetPnL, sum.MinNetPnL, sum.MaxNetPnL,
		sum.AvgWin, sum.AvgLoss, sum.GrossProfit, sum.GrossLoss, sum.ProfitFactor,
		sum.TotalFinancing, sum.TotalFees,
		sum.InitialBalance, sum.FinalEquity, sum.ReturnPct, sum.MaxDrawdown, sum.AvgHoldingHours,
		string(monthly), string(clusters),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// GetByRunID retrieves the summary of a run. Returns ErrNotFound if not exists.
func (s *SummaryStore) GetByRunID(ctx context.Context, runID string) (*domain.Summary, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+summaryColumns+` FROM run_summaries WHERE run_id = ? LIMIT 1`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, storage.ErrNotFound
	}
	return summaries[0], nil
}

// GetByRunIDs retrieves summaries for the given runs, ordered by run_id ASC.
func (s *SummaryStore) GetByRunIDs(ctx context.Context, runIDs []string) ([]*domain.Summary, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT `+summaryColumns+`
		FROM run_summaries
		WHERE run_id IN (?)
		ORDER BY run_id ASC
		LIMIT 1 BY run_id
	`, runIDs)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func (s *SummaryStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM run_summaries WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanSummaries(rows chRows) ([]*domain.Summary, error) {
	var result []*domain.Summary
	for rows.Next() {
		var (
			sum                          domain.Summary
			totalTrades, stillOpen       uint32
			wins, losses, maxConsecutive uint32
			monthly, clusters            string
		)
		err := rows.Scan(
			&sum.RunID, &sum.Label,
			&totalTrades, &stillOpen, &wins, &losses, &sum.WinRate, &maxConsecutive,
			&sum.TotalNetPnL, &sum.AvgNetPnL, &sum.MedianNetPnL, &sum.StddevNetPnL, &sum.MinNetPnL, &sum.MaxNetPnL,
			&sum.AvgWin, &sum.AvgLoss, &sum.GrossProfit, &sum.GrossLoss, &sum.ProfitFactor,
			&sum.TotalFinancing, &sum.TotalFees,
			&sum.InitialBalance, &sum.FinalEquity, &sum.ReturnPct, &sum.MaxDrawdown, &sum.AvgHoldingHours,
			&monthly, &clusters,
		)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.TotalTrades = int(totalTrades)
		sum.StillOpen = int(stillOpen)
		sum.Wins = int(wins)
		sum.Losses = int(losses)
		sum.MaxConsecutiveLosses = int(maxConsecutive)

		if err := json.Unmarshal([]byte(monthly), &sum.Monthly); err != nil {
			return nil, fmt.Errorf("decode monthly rows for %s: %w", sum.RunID, err)
		}
		if err := json.Unmarshal([]byte(clusters), &sum.Clusters); err != nil {
			return nil, fmt.Errorf("decode cluster rows for %s: %w", sum.RunID, err)
		}
		result = append(result, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return result, nil
}

var _ storage.SummaryStore = (*SummaryStore)(nil)
