// Package stores opens the storage backends shared by the commands.
package stores

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"backtest-lab/internal/config"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
)

// ErrMissingDSN is returned when a database backend is requested without
// its connection string.
var ErrMissingDSN = errors.New("POSTGRES_DSN and CLICKHOUSE_DSN are required (use --use-memory for in-memory storage)")

// Set holds one implementation of every store. PostgreSQL keeps runs and
// ledgers, ClickHouse keeps candles and summaries.
type Set struct {
	Candles   storage.CandleStore
	Trades    storage.TradeRecordStore
	Runs      storage.RunStore
	Summaries storage.SummaryStore

	closers []func()
}

// Memory returns a set of empty in-memory stores.
func Memory() *Set {
	return &Set{
		Candles:   memory.NewCandleStore(),
		Trades:    memory.NewTradeRecordStore(),
		Runs:      memory.NewRunStore(),
		Summaries: memory.NewSummaryStore(),
	}
}

// Open connects to PostgreSQL and ClickHouse and applies migrations, or
// returns Memory() when useMemory is set.
func Open(ctx context.Context, cfg config.StorageConfig, useMemory bool, logger *zap.Logger) (*Set, error) {
	if useMemory {
		logger.Info("using in-memory storage")
		return Memory(), nil
	}
	if cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "" {
		return nil, ErrMissingDSN
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Info("storage ready", zap.String("postgres", "migrated"), zap.String("clickhouse", "migrated"))

	return &Set{
		Candles:   chstore.NewCandleStore(conn),
		Trades:    pgstore.NewTradeRecordStore(pool),
		Runs:      pgstore.NewRunStore(pool),
		Summaries: chstore.NewSummaryStore(conn),
		closers: []func(){
			func() { conn.Close() },
			pool.Close,
		},
	}, nil
}

// Close releases database connections. It is a no-op for memory stores.
func (s *Set) Close() {
	for _, c := range s.closers {
		c()
	}
}
