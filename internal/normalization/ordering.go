// Package normalization cleans raw candle series before indicators see them.
package normalization

import (
	"sort"

	"backtest-lab/internal/domain"
)

// Drop reasons reported by NormalizeCandles.
const (
	DropReasonInvalid   = "invalid"
	DropReasonDuplicate = "duplicate"
)

// DroppedCandle records a candle removed during normalization.
type DroppedCandle struct {
	Candle domain.Candle
	Reason string // DropReason*
	Detail string // validation message, empty for duplicates
}

// NormalizeCandles returns a series sorted ascending by timestamp with no
// duplicate timestamps and no structurally invalid bars.
//
// Duplicates resolve last-write-wins: of several candles sharing a timestamp,
// the one appearing last in the input is kept. The input slice is not modified.
func NormalizeCandles(candles []domain.Candle) ([]domain.Candle, []DroppedCandle) {
	if len(candles) == 0 {
		return nil, nil
	}

	var dropped []DroppedCandle
	valid := make([]indexedCandle, 0, len(candles))
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			dropped = append(dropped, DroppedCandle{Candle: c, Reason: DropReasonInvalid, Detail: err.Error()})
			continue
		}
		c.Timestamp = c.Timestamp.UTC()
		valid = append(valid, indexedCandle{candle: c, seq: i})
	}

	// Stable order: timestamp ASC, input position ASC
	sort.SliceStable(valid, func(i, j int) bool {
		return compareIndexed(valid[i], valid[j]) < 0
	})

	result := make([]domain.Candle, 0, len(valid))
	for i, ic := range valid {
		if i+1 < len(valid) && valid[i+1].candle.Timestamp.Equal(ic.candle.Timestamp) {
			dropped = append(dropped, DroppedCandle{Candle: ic.candle, Reason: DropReasonDuplicate})
			continue
		}
		result = append(result, ic.candle)
	}

	return result, dropped
}

type indexedCandle struct {
	candle domain.Candle
	seq    int // position in the input
}

// compareIndexed returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareIndexed(a, b indexedCandle) int {
	if !a.candle.Timestamp.Equal(b.candle.Timestamp) {
		if a.candle.Timestamp.Before(b.candle.Timestamp) {
			return -1
		}
		return 1
	}
	if a.seq != b.seq {
		if a.seq < b.seq {
			return -1
		}
		return 1
	}
	return 0
}

// IsNormalized reports whether candles are strictly increasing by timestamp.
func IsNormalized(candles []domain.Candle) bool {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			return false
		}
	}
	return true
}
