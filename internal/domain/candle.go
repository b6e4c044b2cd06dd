package domain

import (
	"fmt"
	"math"
	"time"
)

// Candle is one OHLC bar. Timestamp is the bar open time in UTC.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Validate reports the first structural problem with the candle, if any.
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite price at %s", c.Timestamp.Format(time.RFC3339))
		}
	}
	if c.Low > c.High {
		return fmt.Errorf("low %.5f above high %.5f", c.Low, c.High)
	}
	if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("open/close outside [low, high]")
	}
	return nil
}

// Timeframe identifies a bar interval, e.g. "5min" or "4hour".
type Timeframe string

// Supported timeframes
const (
	Timeframe1Min  Timeframe = "1min"
	Timeframe5Min  Timeframe = "5min"
	Timeframe15Min Timeframe = "15min"
	Timeframe30Min Timeframe = "30min"
	Timeframe1Hour Timeframe = "1hour"
	Timeframe4Hour Timeframe = "4hour"
	Timeframe1Day  Timeframe = "1day"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1Min:  time.Minute,
	Timeframe5Min:  5 * time.Minute,
	Timeframe15Min: 15 * time.Minute,
	Timeframe30Min: 30 * time.Minute,
	Timeframe1Hour: time.Hour,
	Timeframe4Hour: 4 * time.Hour,
	Timeframe1Day:  24 * time.Hour,
}

// Duration returns the bar length. ok is false for unknown timeframes.
func (tf Timeframe) Duration() (time.Duration, bool) {
	d, ok := timeframeDurations[tf]
	return d, ok
}

// SeriesKey addresses one candle series in a store.
type SeriesKey struct {
	Symbol    string    // instrument, e.g. "XAU/USD"
	Timeframe Timeframe // bar interval
}

func (k SeriesKey) String() string {
	return k.Symbol + "@" + string(k.Timeframe)
}
