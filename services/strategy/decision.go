package strategy

import (
	"fmt"

	"breakout_bot/models"
)

// Action is the outcome of evaluating one candle against a baseline
type Action string

const (
	ActionHold       Action = "hold"
	ActionTrade      Action = "trade"
	ActionInvalidate Action = "invalidate"
)

// Decision carries the action and a human readable reason
type Decision struct {
	Action   Action
	Side     models.Side
	RangePct float64
	Reason   string
}

// Decide applies the breakout/breakdown rule for the session bias
func Decide(bias models.MarketBias, base Baseline, c models.Candle, maxRangePct float64) Decision {
	rangePct := c.RangePercent()
	d := Decision{Action: ActionHold, RangePct: rangePct}

	switch bias {
	case models.BiasBullish:
		if c.Close > base.High && rangePct <= maxRangePct {
			d.Action = ActionTrade
			d.Side = bias.EntrySide()
			d.Reason = fmt.Sprintf("close %.2f > baseline high %.2f, range %.2f%% <= %.2f%%", c.Close, base.High, rangePct, maxRangePct)
		} else if c.Low < base.Low {
			d.Action = ActionInvalidate
			d.Reason = fmt.Sprintf("low %.2f broke baseline low %.2f", c.Low, base.Low)
		}
	case models.BiasBearish:
		if c.Close < base.Low && rangePct <= maxRangePct {
			d.Action = ActionTrade
			d.Side = bias.EntrySide()
			d.Reason = fmt.Sprintf("close %.2f < baseline low %.2f, range %.2f%% <= %.2f%%", c.Close, base.Low, rangePct, maxRangePct)
		} else if c.High > base.High {
			d.Action = ActionInvalidate
			d.Reason = fmt.Sprintf("high %.2f reversed above baseline high %.2f", c.High, base.High)
		}
	}
	return d
}
