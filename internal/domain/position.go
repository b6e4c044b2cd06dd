package domain

import "time"

// Role discriminates structurally different positions.
type Role string

// Role values
const (
	RoleLong        Role = "long"
	RoleShort       Role = "short"
	RoleShortPaired Role = "short_paired"
	RoleShortHedge  Role = "short_hedge"
)

// Direction returns the trading side implied by the role.
func (r Role) Direction() Direction {
	if r == RoleLong {
		return DirectionLong
	}
	return DirectionShort
}

// PositionStatus is OPEN until the simulator moves the position to the ledger.
type PositionStatus string

// Position statuses
const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is a simulated open trade. Owned and mutated only by the simulator.
type Position struct {
	ID             int
	Role           Role
	Direction      Direction
	SignalTime     time.Time // originating signal or trigger time
	EntryTime      time.Time
	EntryIndex     int
	EntryPrice     float64
	Size           float64
	Stop           *float64 // nil when the entry rule sets no stop
	Target         float64
	Status         PositionStatus
	DailyReference float64 // day's opening price at entry

	AdverseExcursion float64 // worst paper loss so far, currency, never decreases

	Snapshot *Snapshot // signal context, nil for trigger-based entries
}
