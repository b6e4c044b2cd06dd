package domain

// Trend is the coarse-timeframe regime classification.
type Trend string

// Trend values
const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
)

// IndicatorFrame is a Candle extended with derived values.
// Nil pointers mean the value is undefined (warm-up window).
type IndicatorFrame struct {
	Candle

	RSI    *float64 // oscillator
	RSISMA *float64 // simple moving average of RSI
	ATR    *float64 // average true range

	Trend       Trend     // coarse trend as of this bar
	Supports    []float64 // sorted ascending, de-duplicated
	Resistances []float64 // sorted ascending, de-duplicated
}

// HasOscillator reports whether both RSI and its average are defined.
func (f *IndicatorFrame) HasOscillator() bool {
	return f.RSI != nil && f.RSISMA != nil
}
