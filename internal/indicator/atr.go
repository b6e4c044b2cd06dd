package indicator

import (
	"math"

	"backtest-lab/internal/domain"
)

// TrueRange returns the true range of each bar. The first bar has no previous
// close, so its range is high minus low.
func TrueRange(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		out[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return out
}

// ATR returns Wilder's average true range. The first defined value is at
// index period: the mean of true ranges 1..period, then smoothed with
// alpha 1/period.
func ATR(candles []domain.Candle, period int) []float64 {
	out := nanSeries(len(candles))
	if period <= 0 || len(candles) <= period {
		return out
	}

	tr := TrueRange(candles)
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period] = atr

	p := float64(period)
	for i := period + 1; i < len(candles); i++ {
		atr = (atr*(p-1) + tr[i]) / p
		out[i] = atr
	}

	return out
}
