package indicator

import "math"

// SMA returns the simple moving average over a window of period values.
// A window containing any NaN yields NaN, so a SMA of a warm-up series
// becomes defined only once period consecutive values are defined.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}

	sum := 0.0
	valid := 0 // consecutive defined values ending at i
	for i, v := range values {
		if math.IsNaN(v) {
			sum = 0
			valid = 0
			continue
		}
		sum += v
		valid++
		if valid > period {
			sum -= values[i-period]
			valid = period
		}
		if valid == period {
			out[i] = sum / float64(period)
		}
	}

	return out
}
