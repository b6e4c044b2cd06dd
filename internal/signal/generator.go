// Package signal scans indicator frames for confirmed RSI/SMA crossovers.
package signal

import (
	"backtest-lab/internal/domain"
	"backtest-lab/internal/indicator"
)

// Rejection reasons
const (
	RejectThreshold     = "threshold"
	RejectOutsideWindow = "outside_window"
	RejectUnconfirmed   = "unconfirmed"
	RejectRegime        = "regime"
	RejectNearLevel     = "near_level"
)

// DefaultNearnessFallbackPct is the nearness band, as a fraction of entry
// price, used when ATR is undefined or zero.
const DefaultNearnessFallbackPct = 0.001

// Config holds the crossover filters.
type Config struct {
	LongThreshold  float64 // long cross qualifies only if RSI < LongThreshold
	ShortThreshold float64 // short cross qualifies only if RSI > ShortThreshold
	Windows        []Window
	RequiredTrend  domain.Trend // empty disables the regime filter

	NearnessMultiple    float64 // band = ATR * NearnessMultiple
	NearnessFallbackPct float64 // band = entry * pct when ATR is unusable
}

// DefaultConfig returns the thresholds the strategy was tuned with.
func DefaultConfig() Config {
	return Config{
		LongThreshold:       46,
		ShortThreshold:      60,
		Windows:             DefaultWindows(),
		RequiredTrend:       domain.TrendDown,
		NearnessMultiple:    0.5,
		NearnessFallbackPct: DefaultNearnessFallbackPct,
	}
}

// Result is the output of one scan.
type Result struct {
	Signals    []domain.Signal
	Crossings  int            // crossings detected before filtering
	Rejections map[string]int // reason -> count
}

// Generate emits signals in crossing-bar order. Bar i is evaluated from the
// first bar with a defined oscillator average up to len-2, so that bar i+1
// exists for confirmation.
func Generate(frames []domain.IndicatorFrame, cfg Config) Result {
	res := Result{Rejections: make(map[string]int)}

	first := indicator.FirstDefined(frames)
	if first < 0 {
		return res
	}
	if first < 1 {
		first = 1
	}

	for i := first; i <= len(frames)-2; i++ {
		cur, prev := &frames[i], &frames[i-1]
		if !cur.HasOscillator() || !prev.HasOscillator() {
			continue
		}

		dir, crossed := Crossing(prev, cur)
		if !crossed {
			continue
		}
		res.Crossings++

		if reason := evaluate(frames, i, dir, cfg); reason != "" {
			res.Rejections[reason]++
			continue
		}

		confirm := &frames[i+1]
		res.Signals = append(res.Signals, domain.Signal{
			SignalTime:  cur.Timestamp,
			EntryTime:   confirm.Timestamp,
			SignalIndex: i,
			EntryIndex:  i + 1,
			Direction:   dir,
			EntryPrice:  confirm.Close,
			Snapshot: domain.Snapshot{
				RSI:         *cur.RSI,
				RSISMA:      *cur.RSISMA,
				ATR:         cur.ATR,
				Trend:       cur.Trend,
				Supports:    cur.Supports,
				Resistances: cur.Resistances,
			},
		})
	}

	return res
}

// Crossing detects a crossover between two consecutive frames.
// Long: RSI moves from at-or-below its average to above it.
// Short: RSI moves from at-or-above its average to below it.
// Both frames must have defined oscillator values.
func Crossing(prev, cur *domain.IndicatorFrame) (domain.Direction, bool) {
	r, s := *cur.RSI, *cur.RSISMA
	pr, ps := *prev.RSI, *prev.RSISMA
	switch {
	case r > s && pr <= ps:
		return domain.DirectionLong, true
	case r < s && pr >= ps:
		return domain.DirectionShort, true
	}
	return "", false
}

// evaluate applies the filters in order and returns the first rejection
// reason, or "" if the crossing at i qualifies.
func evaluate(frames []domain.IndicatorFrame, i int, dir domain.Direction, cfg Config) string {
	cur := &frames[i]
	rsi := *cur.RSI

	if dir == domain.DirectionLong && rsi >= cfg.LongThreshold {
		return RejectThreshold
	}
	if dir == domain.DirectionShort && rsi <= cfg.ShortThreshold {
		return RejectThreshold
	}

	if !InAnyWindow(cur.Timestamp, cfg.Windows) {
		return RejectOutsideWindow
	}

	confirm := &frames[i+1]
	if dir == domain.DirectionLong && !(confirm.Close > confirm.Open) {
		return RejectUnconfirmed
	}
	if dir == domain.DirectionShort && !(confirm.Close < confirm.Open) {
		return RejectUnconfirmed
	}

	if cfg.RequiredTrend != "" && cur.Trend != cfg.RequiredTrend {
		return RejectRegime
	}

	entry := confirm.Close
	band := nearness(cur.ATR, entry, cfg)
	if dir == domain.DirectionLong && levelAbove(cur.Resistances, entry, band) {
		return RejectNearLevel
	}
	if dir == domain.DirectionShort && levelBelow(cur.Supports, entry, band) {
		return RejectNearLevel
	}

	return ""
}

func nearness(atr *float64, entry float64, cfg Config) float64 {
	if atr != nil && *atr > 0 {
		return *atr * cfg.NearnessMultiple
	}
	pct := cfg.NearnessFallbackPct
	if pct <= 0 {
		pct = DefaultNearnessFallbackPct
	}
	return entry * pct
}

// levelAbove reports whether any level lies in (entry, entry+band).
func levelAbove(levels []float64, entry, band float64) bool {
	for _, l := range levels {
		if l > entry && l-entry < band {
			return true
		}
	}
	return false
}

// levelBelow reports whether any level lies in (entry-band, entry).
func levelBelow(levels []float64, entry, band float64) bool {
	for _, l := range levels {
		if l < entry && entry-l < band {
			return true
		}
	}
	return false
}
