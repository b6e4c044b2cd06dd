package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"backtest-lab/internal/domain"
)

// setupTestDB starts a PostgreSQL container and applies the schema migrations.
// The returned cleanup must be called when the test is done.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	applyMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// applyMigrations executes the .sql files of the migrations package in name order.
// The migrations package itself imports this one, so the files are read from disk.
func applyMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	dir := filepath.Join("..", "migrations", "postgres")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "failed to read migrations directory")

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := os.ReadFile(filepath.Join(dir, file))
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration: %s", file)
	}
}

var baseTime = time.Date(2025, 4, 1, 4, 0, 0, 0, time.UTC)

func testRun(id string, startedAt time.Time) *domain.Run {
	return &domain.Run{
		RunID:     id,
		Symbol:    "XAGUSD",
		Timeframe: domain.Timeframe5Min,
		Label:     "long<46 short>60",
		Config:    []byte("series:\n  symbol: XAGUSD\n"),
		Status:    domain.RunStatusRunning,
		StartedAt: startedAt,
	}
}

func testTrade(runID string, positionID int, exitAt time.Time) *domain.TradeRecord {
	entryAt := exitAt.Add(-30 * time.Minute)
	return &domain.TradeRecord{
		TradeID:             runID + "-" + string(rune('a'+positionID)),
		RunID:               runID,
		PositionID:          positionID,
		Role:                domain.RoleLong,
		Direction:           domain.DirectionLong,
		SignalTime:          entryAt.Add(-5 * time.Minute),
		EntryTime:           entryAt,
		EntryPrice:          32.5,
		Size:                200,
		Stop:                ptr(32.3),
		Target:              32.9,
		ExitTime:            exitAt,
		ExitPrice:           32.9,
		ExitReason:          domain.ExitReasonTargetHit,
		GrossPnL:            80,
		FinancingCost:       -1.5,
		Fee:                 2,
		MaxAdverseExcursion: 12,
		NetPnL:              76.5,
		EquityAfter:         100076.5,
		DaysHeld:            0,
		DailyReference:      32.4,
	}
}

func ptr[T any](v T) *T {
	return &v
}
