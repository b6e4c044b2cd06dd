package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

const tradeRecordColumns = `
	trade_id, run_id, position_id, role, direction,
	signal_time, entry_time, entry_price, size, stop_price, target_price,
	exit_time, exit_price, exit_reason,
	gross_pnl, financing_cost, fee, max_adverse_excursion, net_pnl, equity_after,
	days_held, daily_reference,
	signal_rsi, signal_rsi_sma, signal_atr, signal_trend, signal_supports, signal_resistances`

const insertTradeRecordQuery = `
	INSERT INTO trade_records (` + tradeRecordColumns + `
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10, $11,
		$12, $13, $14,
		$15, $16, $17, $18, $19, $20,
		$21, $22,
		$23, $24, $25, $26, $27, $28
	)`

func tradeRecordArgs(t *domain.TradeRecord) []any {
	var (
		rsi, rsiSMA, atr      *float64
		trend                 *string
		supports, resistances []float64
	)
	if sig := t.Signal; sig != nil {
		rsi, rsiSMA, atr = &sig.RSI, &sig.RSISMA, sig.ATR
		tr := string(sig.Trend)
		trend = &tr
		supports, resistances = sig.Supports, sig.Resistances
	}

	return []any{
		t.TradeID, t.RunID, t.PositionID, string(t.Role), string(t.Direction),
		t.SignalTime, t.EntryTime, t.EntryPrice, t.Size, t.Stop, t.Target,
		t.ExitTime, t.ExitPrice, t.ExitReason,
		t.GrossPnL, t.FinancingCost, t.Fee, t.MaxAdverseExcursion, t.NetPnL, t.EquityAfter,
		t.DaysHeld, t.DailyReference,
		rsi, rsiSMA, atr, trend, supports, resistances,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id or (run_id, position_id) exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeRecordQuery, tradeRecordArgs(t)...)
	if err != nil {
		return mapInsertError("insert trade record", t.RunID, err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTradeRecordQuery, tradeRecordArgs(t)...)
	}

	results := tx.SendBatch(ctx, batch)
	for _, t := range trades {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return mapInsertError("insert trade record in bulk", t.RunID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func mapInsertError(op, runID string, err error) error {
	switch {
	case isDuplicateKeyError(err):
		return storage.ErrDuplicateKey
	case isForeignKeyError(err):
		return fmt.Errorf("%s: unknown run %q: %w", op, runID, storage.ErrInvalidInput)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE trade_id = $1`

	t, err := scanTradeRecord(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByRunID retrieves the ledger of a run in close order.
func (s *TradeRecordStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE run_id = $1
		ORDER BY exit_time ASC, position_id ASC`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by run id: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var (
		t                     domain.TradeRecord
		role, dir             string
		stop                  *float64
		rsi, rsiSMA, atr      *float64
		trend                 *string
		supports, resistances []float64
	)
	err := row.Scan(
		&t.TradeID, &t.RunID, &t.PositionID, &role, &dir,
		&t.SignalTime, &t.EntryTime, &t.EntryPrice, &t.Size, &stop, &t.Target,
		&t.ExitTime, &t.ExitPrice, &t.ExitReason,
		&t.GrossPnL, &t.FinancingCost, &t.Fee, &t.MaxAdverseExcursion, &t.NetPnL, &t.EquityAfter,
		&t.DaysHeld, &t.DailyReference,
		&rsi, &rsiSMA, &atr, &trend, &supports, &resistances,
	)
	if err != nil {
		return nil, err
	}
	if rsi != nil {
		sig := &domain.Snapshot{
			RSI:         *rsi,
			ATR:         atr,
			Supports:    supports,
			Resistances: resistances,
		}
		if rsiSMA != nil {
			sig.RSISMA = *rsiSMA
		}
		if trend != nil {
			sig.Trend = domain.Trend(*trend)
		}
		t.Signal = sig
	}
	t.Role = domain.Role(role)
	t.Direction = domain.Direction(dir)
	t.Stop = stop
	t.SignalTime = utc(t.SignalTime)
	t.EntryTime = utc(t.EntryTime)
	t.ExitTime = utc(t.ExitTime)
	return &t, nil
}

func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var result []*domain.TradeRecord
	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade records: %w", err)
	}
	return result, nil
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
