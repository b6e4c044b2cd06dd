package indicator

import (
	"fmt"
	"math"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/lookup"
)

// Config holds indicator look-back windows.
type Config struct {
	RSIPeriod    int // oscillator window
	RSISMAPeriod int // moving average of the oscillator
	ATRPeriod    int // volatility window
	TrendPeriod  int // SMA window on the trend series
}

// DefaultConfig returns the windows the strategy was tuned with.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:    29,
		RSISMAPeriod: 14,
		ATRPeriod:    14,
		TrendPeriod:  50,
	}
}

// Validate checks that every window is positive.
func (c Config) Validate() error {
	if c.RSIPeriod <= 0 || c.RSISMAPeriod <= 0 || c.ATRPeriod <= 0 || c.TrendPeriod <= 0 {
		return fmt.Errorf("indicator periods must be positive: %+v", c)
	}
	return nil
}

// Inputs are the normalized series an indicator build reads.
// Every series is stamped with bar open times.
type Inputs struct {
	Primary          []domain.Candle // series that signals are evaluated on
	PrimaryTimeframe domain.Timeframe
	Trend            []domain.Candle // coarser series for the regime classifier
	TrendTimeframe   domain.Timeframe
	Levels           [][]domain.Candle  // coarser series for pivot levels, merged
	LevelTimeframes  []domain.Timeframe // parallel to Levels
}

// Build returns one IndicatorFrame per primary candle.
//
// A frame describes the market at its candle's close. Trend and levels at a
// frame use, per coarse series, the last bar that has closed by then
// (bar open + bar length <= candle open + candle length). A frame with no
// closed level bar has no levels.
func Build(in Inputs, cfg Config) ([]domain.IndicatorFrame, error) {
	n := len(in.Primary)
	if n == 0 {
		return nil, nil
	}
	if len(in.LevelTimeframes) != len(in.Levels) {
		return nil, fmt.Errorf("indicator: %d level series but %d level timeframes", len(in.Levels), len(in.LevelTimeframes))
	}
	primarySpan, err := span(in.PrimaryTimeframe)
	if err != nil {
		return nil, err
	}
	trendSpan, err := span(in.TrendTimeframe)
	if err != nil {
		return nil, err
	}
	levelSpans := make([]time.Duration, len(in.LevelTimeframes))
	for i, tf := range in.LevelTimeframes {
		if levelSpans[i], err = span(tf); err != nil {
			return nil, err
		}
	}

	closes := make([]float64, n)
	for i, c := range in.Primary {
		closes[i] = c.Close
	}
	rsi := RSI(closes, cfg.RSIPeriod)
	rsiSMA := SMA(rsi, cfg.RSISMAPeriod)
	atr := ATR(in.Primary, cfg.ATRPeriod)

	trends := TrendSeries(in.Trend, cfg.TrendPeriod)
	trendCursor := lookup.NewCursor(in.Trend)

	levelCursors := make([]*lookup.Cursor, len(in.Levels))
	for i, s := range in.Levels {
		levelCursors[i] = lookup.NewCursor(s)
	}
	levelIdx := make([]int, len(in.Levels))
	prevIdx := make([]int, len(in.Levels))
	for i := range prevIdx {
		prevIdx[i] = -2 // force first computation
	}
	var levels Levels

	frames := make([]domain.IndicatorFrame, n)
	for i, c := range in.Primary {
		f := domain.IndicatorFrame{
			Candle: c,
			RSI:    defined(rsi[i]),
			RSISMA: defined(rsiSMA[i]),
			ATR:    defined(atr[i]),
			Trend:  domain.TrendSideways,
		}

		closedAt := c.Timestamp.Add(primarySpan)
		if idx := trendCursor.Completed(closedAt, trendSpan); idx >= 0 {
			f.Trend = trends[idx]
		}

		changed := false
		for k, cur := range levelCursors {
			levelIdx[k] = cur.Completed(closedAt, levelSpans[k])
			if levelIdx[k] != prevIdx[k] {
				changed = true
			}
		}
		if changed {
			sets := make([]Levels, 0, len(levelIdx))
			for k, idx := range levelIdx {
				if idx >= 0 {
					sets = append(sets, PivotLevels(in.Levels[k][idx]))
				}
			}
			levels = Merge(sets...)
			copy(prevIdx, levelIdx)
		}
		f.Supports = levels.Supports
		f.Resistances = levels.Resistances

		frames[i] = f
	}

	return frames, nil
}

// FirstDefined returns the first index whose oscillator and average are both
// defined, or -1 if none is.
func FirstDefined(frames []domain.IndicatorFrame) int {
	for i := range frames {
		if frames[i].HasOscillator() {
			return i
		}
	}
	return -1
}

func span(tf domain.Timeframe) (time.Duration, error) {
	d, ok := tf.Duration()
	if !ok {
		return 0, fmt.Errorf("indicator: unknown timeframe %q", tf)
	}
	return d, nil
}

func defined(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
