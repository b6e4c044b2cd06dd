package strategy

import (
	"fmt"
	"time"

	"backtest-lab/internal/domain"
)

// LadderConfig parameterizes daily-drop entries.
type LadderConfig struct {
	Size       float64  // position size
	DropPct    float64  // first entry at dailyRef * (1 - DropPct)
	Step       float64  // later entries at lastEntry - Step, price units
	TakeProfit float64  // target = entry + TakeProfit
	StopOffset *float64 // stop = entry - StopOffset; nil for no stop
}

// Ladder buys dips against the day's opening price. The first long of a
// UTC day triggers when price drops DropPct below the day's open; each
// further long that day triggers Step below the most recent open long.
// Entries fill intrabar at the trigger price, at most one per candle.
type Ladder struct {
	cfg LadderConfig
}

// Compile-time interface check.
var _ EntryRule = (*Ladder)(nil)

// NewLadder creates a ladder rule.
func NewLadder(cfg LadderConfig) *Ladder {
	return &Ladder{cfg: cfg}
}

// ID returns rule identifier.
func (l *Ladder) ID() string {
	return fmt.Sprintf("LADDER_drop%g_step%g_tp%g", l.cfg.DropPct, l.cfg.Step, l.cfg.TakeProfit)
}

// Propose returns one long order if this candle's low reaches the next rung.
func (l *Ladder) Propose(in *CandleInput) []Proposal {
	if in.DailyReference <= 0 {
		return nil
	}

	trigger := in.DailyReference * (1 - l.cfg.DropPct)
	if last, ok := lastLongToday(in); ok {
		trigger = last.EntryPrice - l.cfg.Step
	}
	if in.Frame.Low > trigger {
		return nil
	}

	order := &Order{
		Role:       domain.RoleLong,
		SignalTime: in.Frame.Timestamp,
		EntryPrice: trigger,
		Size:       l.cfg.Size,
		Target:     trigger + l.cfg.TakeProfit,
		Intrabar:   true,
	}
	if l.cfg.StopOffset != nil {
		stop := trigger - *l.cfg.StopOffset
		order.Stop = &stop
	}
	return []Proposal{{Order: order}}
}

// lastLongToday returns the most recently opened long entered against the
// current day's reference.
func lastLongToday(in *CandleInput) (domain.Position, bool) {
	day := dayKey(in.Frame.Timestamp)
	for i := len(in.Open) - 1; i >= 0; i-- {
		p := in.Open[i]
		if p.Role != domain.RoleLong {
			continue
		}
		if p.DailyReference == in.DailyReference && dayKey(p.EntryTime) == day {
			return p, true
		}
	}
	return domain.Position{}, false
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
