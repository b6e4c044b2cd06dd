package simulation

import (
	"math"
	"time"

	"backtest-lab/internal/domain"
)

// grossPnL returns (exit - entry) * sign * size * pipValue.
func grossPnL(p *domain.Position, exitPrice, pipValue float64) float64 {
	return (exitPrice - p.EntryPrice) * p.Direction.Sign() * p.Size * pipValue
}

// financing returns the signed holding cost for days held.
func (c Config) financing(p *domain.Position, days int) float64 {
	rate := c.FinancingLongPerNight
	if p.Direction == domain.DirectionShort {
		rate = c.FinancingShortPerNight
	}
	return float64(days) * rate * p.Size
}

// calendarDays returns the number of UTC date boundaries between from and to.
func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f) / (24 * time.Hour))
}

// adverseExtreme returns the candle's worst price for the position,
// bounded by the stop when one is set.
func adverseExtreme(p *domain.Position, c *domain.Candle) float64 {
	if p.Direction == domain.DirectionShort {
		x := c.High
		if p.Stop != nil && x > *p.Stop {
			x = *p.Stop
		}
		return x
	}
	x := c.Low
	if p.Stop != nil && x < *p.Stop {
		x = *p.Stop
	}
	return x
}

// adverseAt returns the paper loss at the candle's adverse extreme, >= 0.
func adverseAt(p *domain.Position, c *domain.Candle, pipValue float64) float64 {
	return math.Max(0, -grossPnL(p, adverseExtreme(p, c), pipValue))
}

// drawdown returns (peak - equity) / peak, or 0 when peak <= 0 or equity >= peak.
// Negative equity counts as a total loss.
func drawdown(peak, equity float64) float64 {
	if peak <= 0 || equity >= peak {
		return 0
	}
	return math.Min(1, (peak-equity)/peak)
}
