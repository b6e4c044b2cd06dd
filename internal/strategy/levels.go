package strategy

import "backtest-lab/internal/domain"

// StopTarget derives stop and target from level lists.
//
// Long: stop = highest support below entry, target = lowest resistance above.
// Short: stop = lowest resistance above entry, target = highest support below.
// ok is false if either level does not exist.
func StopTarget(dir domain.Direction, entry float64, supports, resistances []float64) (stop, target float64, ok bool) {
	below, hasBelow := highestBelow(supports, entry)
	above, hasAbove := lowestAbove(resistances, entry)

	if dir == domain.DirectionShort {
		return above, below, hasAbove && hasBelow
	}
	return below, above, hasBelow && hasAbove
}

func highestBelow(levels []float64, price float64) (float64, bool) {
	found := false
	best := 0.0
	for _, l := range levels {
		if l < price && (!found || l > best) {
			best = l
			found = true
		}
	}
	return best, found
}

func lowestAbove(levels []float64, price float64) (float64, bool) {
	found := false
	best := 0.0
	for _, l := range levels {
		if l > price && (!found || l < best) {
			best = l
			found = true
		}
	}
	return best, found
}
