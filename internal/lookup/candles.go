// Package lookup provides as-of searches over normalized candle series.
package lookup

import (
	"sort"
	"time"

	"backtest-lab/internal/domain"
)

// IndexAtOrBefore returns the index of the last candle with timestamp <= target.
// Returns -1 if every candle is after target.
// Candles must be sorted ascending.
func IndexAtOrBefore(target time.Time, candles []domain.Candle) int {
	// First index strictly after target, minus one
	return sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp.After(target)
	}) - 1
}

// IndexCompleted returns the index of the last bar of length span that has
// finished by asOf, that is ts+span <= asOf. Returns -1 if none has.
func IndexCompleted(asOf time.Time, span time.Duration, candles []domain.Candle) int {
	return IndexAtOrBefore(asOf.Add(-span), candles)
}

// Cursor walks a sorted series forward for monotonically increasing targets.
// It is the linear-time counterpart of IndexAtOrBefore/IndexCompleted for
// callers that visit targets in ascending order.
type Cursor struct {
	candles    []domain.Candle
	atOrBefore int // last index with ts <= previous target
}

// NewCursor creates a cursor positioned before the first candle.
func NewCursor(candles []domain.Candle) *Cursor {
	return &Cursor{candles: candles, atOrBefore: -1}
}

// AtOrBefore advances to target and returns the last index with ts <= target.
func (c *Cursor) AtOrBefore(target time.Time) int {
	for c.atOrBefore+1 < len(c.candles) && !c.candles[c.atOrBefore+1].Timestamp.After(target) {
		c.atOrBefore++
	}
	return c.atOrBefore
}

// Completed advances to asOf and returns the last index whose bar of length
// span has closed by asOf. Successive asOf values must not decrease.
func (c *Cursor) Completed(asOf time.Time, span time.Duration) int {
	return c.AtOrBefore(asOf.Add(-span))
}
