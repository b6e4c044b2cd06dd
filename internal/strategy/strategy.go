// Package strategy holds the entry rules the position simulator consults
// on every candle.
package strategy

import (
	"time"

	"backtest-lab/internal/domain"
)

// EntryRule proposes positions to open at one candle.
type EntryRule interface {
	// Propose is called once per candle after exits have been applied.
	// Proposals are evaluated in order; accepted ones open immediately.
	Propose(in *CandleInput) []Proposal

	// ID returns the rule identifier (includes parameters).
	ID() string
}

// CandleInput is the read-only view a rule receives.
type CandleInput struct {
	Index          int
	Frame          *domain.IndicatorFrame
	DailyReference float64           // first open of the current UTC day
	Open           []domain.Position // open positions, ascending by ID
}

// Order describes one position to open.
type Order struct {
	Role       domain.Role
	SignalTime time.Time
	EntryPrice float64
	Size       float64
	Stop       *float64 // nil for no stop
	Target     float64

	// Intrabar orders fill inside the candle at EntryPrice, so the same
	// candle's favorable extreme may already reach the target.
	Intrabar bool

	Snapshot *domain.Snapshot // signal context, nil for trigger entries
}

// Proposal is a primary order or the reason it was rejected.
type Proposal struct {
	Order  *Order
	Reject string // non-empty if the rule rejected the entry
}

// Rejection reasons raised by entry rules
const (
	RejectNoLevels        = "no_levels"
	RejectStopTooClose    = "stop_too_close"
	RejectRewardBelowRisk = "reward_below_risk"
)
