package normalization

import (
	"fmt"
	"math"

	"backtest-lab/internal/domain"
)

// Resample aggregates a normalized series into bars of the given timeframe.
// Buckets are aligned to UTC midnight, so 4hour bars open at 00:00, 04:00, ...
//
// Aggregation per bucket:
//   - open = FIRST(open)
//   - high = MAX(high)
//   - low = MIN(low)
//   - close = LAST(close)
//
// The last bucket is emitted even if incomplete.
func Resample(candles []domain.Candle, tf domain.Timeframe) ([]domain.Candle, error) {
	d, ok := tf.Duration()
	if !ok {
		return nil, fmt.Errorf("resample: unknown timeframe %q", tf)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	var result []domain.Candle
	var current *domain.Candle

	for _, c := range candles {
		bucket := c.Timestamp.UTC().Truncate(d)
		if current == nil || !current.Timestamp.Equal(bucket) {
			if current != nil {
				result = append(result, *current)
			}
			current = &domain.Candle{
				Timestamp: bucket,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
			}
			continue
		}
		current.High = math.Max(current.High, c.High)
		current.Low = math.Min(current.Low, c.Low)
		current.Close = c.Close
	}

	if current != nil {
		result = append(result, *current)
	}

	return result, nil
}
