package reporting

import (
	"sort"

	"backtest-lab/internal/domain"
)

// Trade outcome classes
const (
	OutcomeLosing     = "losing"
	OutcomeProfitable = "profitable"
)

// ConditionRow summarizes the signal context of one outcome class.
// Only trades opened from a signal carry context and are counted.
type ConditionRow struct {
	Outcome string
	Trades  int

	AvgRSI      float64
	AvgRSISMA   float64
	AvgLongRSI  *float64 // nil without long trades
	AvgShortRSI *float64 // nil without short trades
	AvgATR      *float64 // over trades with a defined ATR

	Trends      []CountRow // by trend, descending count
	ExitReasons []CountRow // by exit reason, descending count

	WithSupports    int // trades with at least one support level
	WithResistances int // trades with at least one resistance level
}

// CountRow is one category of a distribution.
type CountRow struct {
	Key   string
	Count int
}

// Share returns the category's fraction of total.
func (c CountRow) Share(total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(c.Count) / float64(total)
}

// conditionRows splits signal trades into losing (net <= 0) and profitable
// and summarizes each side. Classes without trades are omitted.
func conditionRows(trades []*domain.TradeRecord) []ConditionRow {
	var losing, profitable []*domain.TradeRecord
	for _, t := range trades {
		if t.Signal == nil {
			continue
		}
		if t.IsWin() {
			profitable = append(profitable, t)
		} else {
			losing = append(losing, t)
		}
	}

	var rows []ConditionRow
	if len(losing) > 0 {
		rows = append(rows, conditionRow(OutcomeLosing, losing))
	}
	if len(profitable) > 0 {
		rows = append(rows, conditionRow(OutcomeProfitable, profitable))
	}
	return rows
}

func conditionRow(outcome string, trades []*domain.TradeRecord) ConditionRow {
	row := ConditionRow{Outcome: outcome, Trades: len(trades)}

	var rsi, sma, longRSI, shortRSI, atr mean
	trends := make(map[string]int)
	reasons := make(map[string]int)
	for _, t := range trades {
		s := t.Signal
		rsi.add(s.RSI)
		sma.add(s.RSISMA)
		if t.Direction == domain.DirectionShort {
			shortRSI.add(s.RSI)
		} else {
			longRSI.add(s.RSI)
		}
		if s.ATR != nil {
			atr.add(*s.ATR)
		}
		trends[string(s.Trend)]++
		reasons[t.ExitReason]++
		if len(s.Supports) > 0 {
			row.WithSupports++
		}
		if len(s.Resistances) > 0 {
			row.WithResistances++
		}
	}

	row.AvgRSI = rsi.value()
	row.AvgRSISMA = sma.value()
	row.AvgLongRSI = longRSI.ptr()
	row.AvgShortRSI = shortRSI.ptr()
	row.AvgATR = atr.ptr()
	row.Trends = countRows(trends)
	row.ExitReasons = countRows(reasons)
	return row
}

// countRows orders categories by count, then key.
func countRows(counts map[string]int) []CountRow {
	rows := make([]CountRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, CountRow{Key: k, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	return rows
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m *mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

func (m *mean) ptr() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.value()
	return &v
}
