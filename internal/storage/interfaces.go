package storage

import (
	"context"
	"time"

	"backtest-lab/internal/domain"
)

// CandleStore provides access to the OHLC candle cache.
type CandleStore interface {
	// UpsertBulk writes candles for one series. A candle with an existing
	// timestamp replaces the stored one (last write wins).
	UpsertBulk(ctx context.Context, key domain.SeriesKey, candles []domain.Candle) error

	// GetRange retrieves candles within [start, end] (inclusive), ordered by timestamp ASC.
	// A zero end means no upper bound.
	GetRange(ctx context.Context, key domain.SeriesKey, start, end time.Time) ([]domain.Candle, error)

	// ListSeries returns all stored series, ordered by symbol, timeframe.
	ListSeries(ctx context.Context) ([]domain.SeriesKey, error)
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade record. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, tr *domain.TradeRecord) error

	// InsertBulk adds multiple trade records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trs []*domain.TradeRecord) error

	// GetByID retrieves a trade record by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByRunID retrieves the ledger of a run in close order
	// (exit_time ASC, position_id ASC).
	GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error)
}

// RunStore provides access to backtest run metadata.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.Run) error

	// Finish records the final status and counters of a run. Returns ErrNotFound if not exists.
	Finish(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Run, error)

	// List returns up to limit runs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*domain.Run, error)
}

// SummaryStore provides access to run summaries.
type SummaryStore interface {
	// Insert adds a summary. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, s *domain.Summary) error

	// GetByRunID retrieves the summary of a run. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.Summary, error)

	// GetByRunIDs retrieves summaries for the given runs, ordered by run_id ASC.
	// Missing runs are skipped.
	GetByRunIDs(ctx context.Context, runIDs []string) ([]*domain.Summary, error)
}
