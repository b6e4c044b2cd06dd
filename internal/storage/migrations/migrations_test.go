package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsOrdered(t *testing.T) {
	pg, err := readMigrations(PostgresFS, "postgres")
	require.NoError(t, err)
	require.Len(t, pg, 3)
	assert.Equal(t, "001_backtest_runs.sql", pg[0].Name, "runs must exist before the ledger references them")
	assert.Contains(t, pg[1].SQL, "REFERENCES backtest_runs")
	assert.Equal(t, "003_trade_signal_context.sql", pg[2].Name, "signal columns extend the ledger table")

	ch, err := readMigrations(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	for _, f := range ch {
		assert.NoError(t, validateNoSemicolonInStrings(f.SQL), f.Name)
		assert.Len(t, splitStatements(f.SQL), 1, f.Name)
	}
}

func TestSplitStatements(t *testing.T) {
	sql := "-- header; ignored\nCREATE TABLE a (x String);\n\nCREATE TABLE b (y String)\n;\n"
	got := splitStatements(sql)
	assert.Equal(t, []string{"CREATE TABLE a (x String)", "CREATE TABLE b (y String)"}, got)
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/backtest")
	require.NoError(t, err)
	assert.Equal(t, "backtest", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
