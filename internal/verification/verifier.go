// Package verification checks stored ledgers: structural invariants of a
// single ledger, and field-by-field agreement with a replayed simulation.
package verification

import (
	"fmt"
	"math"
	"time"

	"backtest-lab/internal/domain"
)

// FloatTolerance is the absolute tolerance for money and price comparisons.
const FloatTolerance = 1e-7

// FieldDivergence is a mismatch between a stored and a replayed value.
type FieldDivergence struct {
	Field    string
	Expected any // stored value
	Actual   any // replayed value
}

// TradeResult is the comparison of one position.
type TradeResult struct {
	PositionID     int
	TradeID        string
	Match          bool
	Divergences    []FieldDivergence
	StoredNetPnL   float64
	ReplayedNetPnL float64
}

// Violation is a broken ledger invariant.
type Violation struct {
	PositionID int // 0 for ledger-level violations
	Rule       string
	Detail     string
}

// Invariant names
const (
	RuleEquity         = "equity_reconciliation"
	RuleNetPnL         = "net_pnl_composition"
	RuleAdverse        = "adverse_excursion_non_negative"
	RuleExitAfterEntry = "exit_not_before_entry"
	RuleUniqueID       = "unique_position_id"
	RuleCloseOrder     = "close_order"
	RuleOpenAtEndFee   = "no_fee_at_data_end"
	RuleFeeSign        = "fee_non_negative"
	RuleDrawdown       = "drawdown_range"
)

// Report is the verification result of one run.
type Report struct {
	RunID string

	TotalTrades     int // stored ledger length
	MatchedTrades   int
	DivergentTrades int
	Missing         int // in the replay but not stored
	Unexpected      int // stored but absent from the replay

	Results    []TradeResult
	Violations []Violation
}

// OK reports whether the run verified cleanly.
func (r *Report) OK() bool {
	return r.DivergentTrades == 0 && r.Missing == 0 && r.Unexpected == 0 && len(r.Violations) == 0
}

// CheckLedger validates the invariants of a ledger in close order.
// maxDrawdown is the run's reported drawdown fraction.
func CheckLedger(ledger []*domain.TradeRecord, initialBalance, maxDrawdown float64) []Violation {
	var out []Violation
	add := func(id int, rule, format string, args ...any) {
		out = append(out, Violation{PositionID: id, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	if maxDrawdown < 0 || maxDrawdown > 1 || math.IsNaN(maxDrawdown) {
		add(0, RuleDrawdown, "max drawdown %.6f outside [0, 1]", maxDrawdown)
	}

	seen := make(map[int]struct{}, len(ledger))
	equity := initialBalance
	var prevExit time.Time
	prevID := 0
	for i, t := range ledger {
		id := t.PositionID

		if _, dup := seen[id]; dup {
			add(id, RuleUniqueID, "position id repeated")
		}
		seen[id] = struct{}{}

		if i > 0 && (t.ExitTime.Before(prevExit) || (t.ExitTime.Equal(prevExit) && id < prevID)) {
			add(id, RuleCloseOrder, "closed at %s after position %d", t.ExitTime.Format(time.RFC3339), prevID)
		}
		prevExit, prevID = t.ExitTime, id

		if t.ExitTime.Before(t.EntryTime) {
			add(id, RuleExitAfterEntry, "exit %s before entry %s", t.ExitTime.Format(time.RFC3339), t.EntryTime.Format(time.RFC3339))
		}
		if t.MaxAdverseExcursion < 0 {
			add(id, RuleAdverse, "max adverse excursion %.6f", t.MaxAdverseExcursion)
		}
		if t.Fee < 0 {
			add(id, RuleFeeSign, "fee %.6f", t.Fee)
		}
		if t.ExitReason == domain.ExitReasonStillOpenAtDataEnd && t.Fee != 0 {
			add(id, RuleOpenAtEndFee, "fee %.6f charged on data-end close", t.Fee)
		}

		if net := t.GrossPnL + t.FinancingCost - t.Fee; !floatEquals(net, t.NetPnL) {
			add(id, RuleNetPnL, "gross + financing - fee = %.6f, net = %.6f", net, t.NetPnL)
		}

		equity += t.NetPnL
		if !floatEquals(equity, t.EquityAfter) {
			add(id, RuleEquity, "expected equity %.6f, recorded %.6f", equity, t.EquityAfter)
			equity = t.EquityAfter
		}
	}
	return out
}

// CompareTradeRecords compares two records of the same position.
func CompareTradeRecords(stored, replayed *domain.TradeRecord) []FieldDivergence {
	var d []FieldDivergence
	exact := func(field string, a, b any) {
		if a != b {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}
	float := func(field string, a, b float64) {
		if !floatEquals(a, b) {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}
	instant := func(field string, a, b time.Time) {
		if !a.Equal(b) {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}

	exact("TradeID", stored.TradeID, replayed.TradeID)
	exact("PositionID", stored.PositionID, replayed.PositionID)
	exact("Role", stored.Role, replayed.Role)
	exact("Direction", stored.Direction, replayed.Direction)

	instant("SignalTime", stored.SignalTime, replayed.SignalTime)
	instant("EntryTime", stored.EntryTime, replayed.EntryTime)
	float("EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	float("Size", stored.Size, replayed.Size)
	if !floatPtrEquals(stored.Stop, replayed.Stop) {
		d = append(d, FieldDivergence{Field: "Stop", Expected: stored.Stop, Actual: replayed.Stop})
	}
	float("Target", stored.Target, replayed.Target)

	instant("ExitTime", stored.ExitTime, replayed.ExitTime)
	float("ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	exact("ExitReason", stored.ExitReason, replayed.ExitReason)

	float("GrossPnL", stored.GrossPnL, replayed.GrossPnL)
	float("FinancingCost", stored.FinancingCost, replayed.FinancingCost)
	float("Fee", stored.Fee, replayed.Fee)
	float("MaxAdverseExcursion", stored.MaxAdverseExcursion, replayed.MaxAdverseExcursion)
	float("NetPnL", stored.NetPnL, replayed.NetPnL)
	float("EquityAfter", stored.EquityAfter, replayed.EquityAfter)

	exact("DaysHeld", stored.DaysHeld, replayed.DaysHeld)
	float("DailyReference", stored.DailyReference, replayed.DailyReference)

	return d
}

// CompareLedgers matches records by position ID and fills the comparison
// part of a report.
func CompareLedgers(runID string, stored, replayed []*domain.TradeRecord) *Report {
	report := &Report{RunID: runID, TotalTrades: len(stored)}

	byID := make(map[int]*domain.TradeRecord, len(replayed))
	for _, t := range replayed {
		byID[t.PositionID] = t
	}

	for _, s := range stored {
		r, ok := byID[s.PositionID]
		if !ok {
			report.Unexpected++
			continue
		}
		delete(byID, s.PositionID)

		res := TradeResult{
			PositionID:     s.PositionID,
			TradeID:        s.TradeID,
			Divergences:    CompareTradeRecords(s, r),
			StoredNetPnL:   s.NetPnL,
			ReplayedNetPnL: r.NetPnL,
		}
		res.Match = len(res.Divergences) == 0
		if res.Match {
			report.MatchedTrades++
		} else {
			report.DivergentTrades++
		}
		report.Results = append(report.Results, res)
	}
	report.Missing = len(byID)
	return report
}

func floatEquals(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= FloatTolerance
}

func floatPtrEquals(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return floatEquals(*a, *b)
}
