package domain

import "time"

// Summary is the aggregate performance record of one run configuration.
type Summary struct {
	RunID string
	Label string // parameter set description, e.g. "long<46 short>60"

	// Counts
	TotalTrades          int
	StillOpen            int // closed as still_open_at_data_end
	Wins                 int
	Losses               int // net P&L <= 0
	WinRate              float64
	MaxConsecutiveLosses int

	// Net P&L distribution
	TotalNetPnL  float64
	AvgNetPnL    float64
	MedianNetPnL float64
	StddevNetPnL float64 // sample standard deviation
	MinNetPnL    float64
	MaxNetPnL    float64
	AvgWin       float64
	AvgLoss      float64

	GrossProfit  float64 // sum of positive net P&L
	GrossLoss    float64 // sum of non-positive net P&L, <= 0
	ProfitFactor float64 // GrossProfit / |GrossLoss|, +Inf without losses

	TotalFinancing float64
	TotalFees      float64

	InitialBalance  float64
	FinalEquity     float64
	ReturnPct       float64 // (final - initial) / initial * 100
	MaxDrawdown     float64 // fraction in [0, 1]
	AvgHoldingHours float64

	Monthly  []MonthlyRow
	Clusters []ClusterRow
}

// MonthlyRow aggregates trades by UTC calendar month of exit.
type MonthlyRow struct {
	Month   string // "2025-04"
	NetPnL  float64
	Trades  int
	Wins    int
	WinRate float64
}

// ClusterRow aggregates observation points by the number of concurrently open trades.
type ClusterRow struct {
	Size          int // concurrently open trades
	TimesFormed   int // observation points with this count
	MaxAdverseSum float64
	AvgNetPnLSum  float64
	MinNetPnLSum  float64
	MaxNetPnLSum  float64
}

// RunStatus values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is the metadata row of one backtest execution.
type Run struct {
	RunID      string
	Symbol     string
	Timeframe  Timeframe
	Label      string
	Config     []byte // YAML snapshot of the effective configuration
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time // nil while running

	Candles     int
	Signals     int
	Trades      int
	FinalEquity float64
	MaxDrawdown float64
	Error       string // failure message, empty on success
}
