package indicator

import (
	"sort"

	"backtest-lab/internal/domain"
)

// Levels holds support and resistance prices, each sorted ascending.
type Levels struct {
	Supports    []float64
	Resistances []float64
}

// PivotLevels computes classic floor-trader pivots from one bar.
//
//	P  = (H + L + C) / 3
//	S1 = 2P - H,  S2 = P - (H - L),  S3 = L - 2(H - P)
//	R1 = 2P - L,  R2 = P + (H - L),  R3 = H + 2(P - L)
//
// P itself is included in both lists.
func PivotLevels(c domain.Candle) Levels {
	h, l, cl := c.High, c.Low, c.Close
	p := (h + l + cl) / 3

	return Levels{
		Supports:    sortedUnique([]float64{2*p - h, p - (h - l), l - 2*(h-p), p}),
		Resistances: sortedUnique([]float64{2*p - l, p + (h - l), h + 2*(p-l), p}),
	}
}

// Merge combines level sets into one, sorted and de-duplicated.
func Merge(sets ...Levels) Levels {
	var s, r []float64
	for _, set := range sets {
		s = append(s, set.Supports...)
		r = append(r, set.Resistances...)
	}
	return Levels{Supports: sortedUnique(s), Resistances: sortedUnique(r)}
}

func sortedUnique(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)

	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
