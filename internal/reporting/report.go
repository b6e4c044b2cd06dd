package reporting

import (
	"time"

	"backtest-lab/internal/domain"
)

// Report is everything rendered for one stored run.
type Report struct {
	GeneratedAt time.Time
	DataVersion string // ledger fingerprint, see idhash.ComputeLedgerVersion

	Run     *domain.Run
	Summary *domain.Summary
	Trades  []*domain.TradeRecord // close order

	ExitReasons []ExitReasonRow // sorted by reason
	Roles       []RoleRow       // sorted by role
	Conditions  []ConditionRow  // losing then profitable, signal trades only
}

// ExitReasonRow aggregates trades by exit reason.
type ExitReasonRow struct {
	Reason string
	Trades int
	Wins   int
	NetPnL float64
}

// RoleRow aggregates trades by position role.
type RoleRow struct {
	Role   domain.Role
	Trades int
	Wins   int
	NetPnL float64
}
