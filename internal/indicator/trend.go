package indicator

import (
	"math"

	"backtest-lab/internal/domain"
)

// ClassifyTrend compares a close against its moving average.
// An undefined average yields sideways.
func ClassifyTrend(close, average float64) domain.Trend {
	switch {
	case math.IsNaN(average):
		return domain.TrendSideways
	case close > average:
		return domain.TrendUp
	case close < average:
		return domain.TrendDown
	default:
		return domain.TrendSideways
	}
}

// TrendSeries classifies each coarse bar against the SMA of its closes.
// Bars inside the warm-up window are sideways.
func TrendSeries(coarse []domain.Candle, period int) []domain.Trend {
	closes := make([]float64, len(coarse))
	for i, c := range coarse {
		closes[i] = c.Close
	}
	avg := SMA(closes, period)

	out := make([]domain.Trend, len(coarse))
	for i := range coarse {
		out[i] = ClassifyTrend(closes[i], avg[i])
	}
	return out
}
