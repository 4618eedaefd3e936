package models

// MarketBias is the directional stance chosen once per session
type MarketBias string

const (
	BiasBullish MarketBias = "bullish"
	BiasBearish MarketBias = "bearish"
	BiasFlat    MarketBias = "flat"
)

// Side is the side of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// EntrySide returns the order side that trades a breakout in the given bias.
// Flat sessions never trade and return an empty side.
func (b MarketBias) EntrySide() Side {
	switch b {
	case BiasBullish:
		return SideBuy
	case BiasBearish:
		return SideSell
	default:
		return ""
	}
}
