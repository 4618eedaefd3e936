package models

import "time"

// Candle represents one OHLCV bar returned by the candle source
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// RangePercent returns (high - low) / low * 100, or 0 when low is not positive
func (c Candle) RangePercent() float64 {
	if c.Low <= 0 {
		return 0
	}
	return (c.High - c.Low) / c.Low * 100
}

// Interval is a broker candle timeframe
type Interval string

const (
	IntervalFiveMinute    Interval = "FIVE_MINUTE"
	IntervalFifteenMinute Interval = "FIFTEEN_MINUTE"
)
