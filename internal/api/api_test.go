package api

import (
	"context"
	"encoding/json"
	"math"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage/memory"
)

var started = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	runs      *memory.RunStore
	trades    *memory.TradeRecordStore
	summaries *memory.SummaryStore
	metrics   *observability.Metrics
	handler   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		runs:      memory.NewRunStore(),
		trades:    memory.NewTradeRecordStore(),
		summaries: memory.NewSummaryStore(),
		metrics:   observability.NewMetrics("test"),
	}
	env.handler = NewServer(Options{
		RunStore:     env.runs,
		TradeStore:   env.trades,
		SummaryStore: env.summaries,
		Metrics:      env.metrics,
	}).Routes()
	return env
}

func (e *testEnv) seedRun(t *testing.T, id string, startedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	finished := startedAt.Add(time.Minute)
	require.NoError(t, e.runs.Insert(ctx, &domain.Run{
		RunID:      id,
		Symbol:     "XAGUSD",
		Timeframe:  domain.Timeframe5Min,
		Label:      "long<46 short>60",
		Config:     []byte("symbol: XAGUSD\n"),
		Status:     domain.RunStatusCompleted,
		StartedAt:  startedAt,
		FinishedAt: &finished,
		Trades:     1,
	}))
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeaderKey))
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, "old", started)
	env.seedRun(t, "new", started.Add(time.Hour))

	rec := env.get(t, "/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Empty(t, runs[0].Config)

	for _, bad := range []string{"0", "-3", "abc", "1001"} {
		rec := env.get(t, "/runs?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}
}

func TestGetRun(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, "run1", started)

	rec := env.get(t, "/runs/run1")
	require.Equal(t, http.StatusOK, rec.Code)
	var run runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "XAGUSD", run.Symbol)
	assert.Equal(t, "5min", run.Timeframe)
	assert.Equal(t, "symbol: XAGUSD\n", run.Config)
	assert.True(t, started.Equal(run.StartedAt))

	rec = env.get(t, "/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"request_id"`)
}

func TestGetTradesAndLedgerCSV(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, "run1", started)
	env.seedRun(t, "empty", started)

	entry := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, env.trades.Insert(context.Background(), &domain.TradeRecord{
		TradeID: "t1", RunID: "run1", PositionID: 1,
		Role: domain.RoleLong, Direction: domain.DirectionLong,
		SignalTime: entry, EntryTime: entry, EntryPrice: 32.5, Size: 1000, Target: 33,
		ExitTime: entry.Add(time.Hour), ExitPrice: 33, ExitReason: domain.ExitReasonTargetHit,
		GrossPnL: 500, NetPnL: 500, EquityAfter: 100500,
		Signal: &domain.Snapshot{RSI: 29.5, RSISMA: 31, Trend: domain.TrendUp, Supports: []float64{32.1}},
	}))

	rec := env.get(t, "/runs/run1/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []tradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "long", trades[0].Role)
	assert.Nil(t, trades[0].Stop)
	assert.Equal(t, 500.0, trades[0].NetPnL)
	require.NotNil(t, trades[0].Signal)
	assert.Equal(t, 29.5, trades[0].Signal.RSI)
	assert.Equal(t, "up", trades[0].Signal.Trend)
	assert.Equal(t, []float64{32.1}, trades[0].Signal.Supports)

	rec = env.get(t, "/runs/empty/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.get(t, "/runs/missing/trades")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.get(t, "/runs/run1/ledger.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "long,2025-04-01T09:30:00Z"))
	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "run1_ledger.csv", params["filename"])
}

func TestGetLedgerCSV_QuotesFilename(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, `a"b;c`, started)

	rec := env.get(t, "/runs/a%22b%3Bc/ledger.csv")
	require.Equal(t, http.StatusOK, rec.Code)

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, `a"b;c_ledger.csv`, params["filename"])
	assert.Len(t, params, 1)

	header := attachment("x\r\nSet-Cookie: y")
	assert.NotContains(t, header, "\r")
	assert.NotContains(t, header, "\n")
	_, params, err = mime.ParseMediaType(header)
	require.NoError(t, err)
	assert.Equal(t, "x\r\nSet-Cookie: y", params["filename"])
}

func TestGetSummary_InfiniteProfitFactor(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, "run1", started)
	require.NoError(t, env.summaries.Insert(context.Background(), &domain.Summary{
		RunID:        "run1",
		TotalTrades:  1,
		Wins:         1,
		WinRate:      1,
		TotalNetPnL:  500,
		GrossProfit:  500,
		ProfitFactor: math.Inf(1),
		Monthly:      []domain.MonthlyRow{{Month: "2025-04", NetPnL: 500, Trades: 1, Wins: 1, WinRate: 1}},
	}))

	rec := env.get(t, "/runs/run1/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["profit_factor"])
	assert.Equal(t, 500.0, body["total_net_pnl"])
	assert.Len(t, body["monthly"], 1)
	assert.Equal(t, []any{}, body["clusters"])

	rec = env.get(t, "/runs/other/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReport(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, "run1", started)

	rec := env.get(t, "/runs/run1/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "run1")

	rec = env.get(t, "/runs/missing/report")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, "run1", started)

	env.get(t, "/runs/run1")
	env.get(t, "/nowhere")

	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `test_api_requests_total{code="200",method="GET",route="/runs/:id"} 1`)
	assert.Contains(t, body, `test_api_requests_total{code="404",method="GET",route="unmatched"} 1`)
	assert.NotContains(t, body, "run1")
}
