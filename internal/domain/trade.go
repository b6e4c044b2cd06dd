package domain

import "time"

// TradeRecord is the immutable result of closing a Position.
type TradeRecord struct {
	TradeID    string // deterministic hash
	RunID      string // backtest run
	PositionID int    // unique within the run
	Role       Role
	Direction  Direction

	// Entry
	SignalTime time.Time
	EntryTime  time.Time
	EntryPrice float64
	Size       float64
	Stop       *float64 // nullable
	Target     float64

	// Indicator context at the crossing bar, nil for trigger entries
	Signal *Snapshot

	// Exit
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason string

	// Money, account currency
	GrossPnL            float64
	FinancingCost       float64 // signed, negative is a charge
	Fee                 float64 // non-negative, subtracted from gross
	MaxAdverseExcursion float64
	NetPnL              float64
	EquityAfter         float64

	DaysHeld       int     // calendar days between entry and exit (UTC)
	DailyReference float64 // day's opening price at entry
}

// Exit reason codes
const (
	ExitReasonTargetHit           = "target_hit"
	ExitReasonTargetHitSameCandle = "target_hit_same_candle"
	ExitReasonStopHit             = "stop_hit"
	ExitReasonSignalReversal      = "signal_reversal"
	ExitReasonTimeLimit           = "time_limit"
	ExitReasonStillOpenAtDataEnd  = "still_open_at_data_end"
)

// HoldDuration returns exit time minus entry time.
func (t *TradeRecord) HoldDuration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// IsWin reports whether the trade closed with positive net P&L.
func (t *TradeRecord) IsWin() bool {
	return t.NetPnL > 0
}
