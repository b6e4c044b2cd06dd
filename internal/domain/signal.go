package domain

import "time"

// Direction is the side of a signal or position.
type Direction string

// Direction values
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// Snapshot holds indicator values captured at the crossing bar.
type Snapshot struct {
	RSI         float64
	RSISMA      float64
	ATR         *float64 // nil if undefined at the crossing bar
	Trend       Trend
	Supports    []float64
	Resistances []float64
}

// Signal is a confirmed entry opportunity. Immutable once emitted.
type Signal struct {
	SignalTime  time.Time // crossing bar
	EntryTime   time.Time // confirmation bar
	SignalIndex int       // index of crossing bar in the frame series
	EntryIndex  int       // index of confirmation bar
	Direction   Direction
	EntryPrice  float64 // close of confirmation bar
	Snapshot    Snapshot
}
