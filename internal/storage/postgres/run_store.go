package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runColumns = `
	run_id, symbol, timeframe, label, config, status, started_at, finished_at,
	candles, signals, trades, final_equity, max_drawdown, error`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO backtest_runs (` + runColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.Symbol, string(r.Timeframe), r.Label, string(r.Config), r.Status, r.StartedAt, r.FinishedAt,
		r.Candles, r.Signals, r.Trades, r.FinalEquity, r.MaxDrawdown, r.Error,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish records the final status and counters. Returns ErrNotFound if not exists.
func (s *RunStore) Finish(ctx context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE backtest_runs SET
			status = $2,
			finished_at = COALESCE($3, finished_at),
			candles = $4,
			signals = $5,
			trades = $6,
			final_equity = $7,
			max_drawdown = $8,
			error = $9
		WHERE run_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		r.RunID, r.Status, r.FinishedAt,
		r.Candles, r.Signals, r.Trades, r.FinalEquity, r.MaxDrawdown, r.Error,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// List returns up to limit runs ordered by started_at DESC, run_id ASC.
func (s *RunStore) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM backtest_runs
		ORDER BY started_at DESC, run_id ASC`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		r          domain.Run
		timeframe  string
		config     string
		finishedAt *time.Time
	)
	err := row.Scan(
		&r.RunID, &r.Symbol, &timeframe, &r.Label, &config, &r.Status, &r.StartedAt, &finishedAt,
		&r.Candles, &r.Signals, &r.Trades, &r.FinalEquity, &r.MaxDrawdown, &r.Error,
	)
	if err != nil {
		return nil, err
	}
	r.Timeframe = domain.Timeframe(timeframe)
	if config != "" {
		r.Config = []byte(config)
	}
	r.StartedAt = utc(r.StartedAt)
	if finishedAt != nil {
		at := utc(*finishedAt)
		r.FinishedAt = &at
	}
	return &r, nil
}

var _ storage.RunStore = (*RunStore)(nil)
