package strategy

import (
	"context"
	"errors"
	"fmt"

	"breakout_bot/config"
	"breakout_bot/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// errTradeSkipped marks a trade abandoned before any order was sent.
var errTradeSkipped = errors.New("trade skipped")

// SizingParams are the position sizing and bracket knobs
type SizingParams struct {
	CapitalFraction     float64
	Leverage            float64
	MinEffectiveCapital float64
	StopLossPct         float64
	TargetPct           float64
	BracketBySide       bool
}

// SizingFromConfig extracts sizing knobs from strategy config
func SizingFromConfig(cfg config.StrategyConfig) SizingParams {
	return SizingParams{
		CapitalFraction:     cfg.CapitalFraction,
		Leverage:            cfg.Leverage,
		MinEffectiveCapital: cfg.MinEffectiveCapital,
		StopLossPct:         cfg.StopLossPct,
		TargetPct:           cfg.TargetPct,
		BracketBySide:       cfg.BracketBySide,
	}
}

// TradePlan is a sized bracket order
type TradePlan struct {
	Request          models.OrderRequest
	Capital          decimal.Decimal
	EffectiveCapital decimal.Decimal
}

// PlanTrade sizes an order from the account balance and the triggering
// candle. The reference price is the candle high. The bracket is long-style
// (stop below, target above) unless BracketBySide mirrors it for sells.
func PlanTrade(symbol string, side models.Side, balance float64, c models.Candle, p SizingParams) (TradePlan, error) {
	if balance <= 0 {
		return TradePlan{}, fmt.Errorf("%w: balance %.2f unavailable or zero", errTradeSkipped, balance)
	}
	price := decimal.NewFromFloat(c.High)
	if !price.IsPositive() {
		return TradePlan{}, fmt.Errorf("%w: invalid reference price %.2f", errTradeSkipped, c.High)
	}

	capital := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(p.CapitalFraction))
	effective := capital.Mul(decimal.NewFromFloat(p.Leverage))
	qty := effective.Div(price).Floor().IntPart()

	if qty <= 0 || effective.LessThan(decimal.NewFromFloat(p.MinEffectiveCapital)) {
		return TradePlan{}, fmt.Errorf("%w: qty=%d effective capital=%s", errTradeSkipped, qty, effective.StringFixed(2))
	}

	hundred := decimal.NewFromInt(100)
	slPct := decimal.NewFromFloat(p.StopLossPct).Div(hundred)
	tgtPct := decimal.NewFromFloat(p.TargetPct).Div(hundred)
	one := decimal.NewFromInt(1)

	stopLoss := price.Mul(one.Sub(slPct))
	target := price.Mul(one.Add(tgtPct))
	if p.BracketBySide && side == models.SideSell {
		stopLoss = price.Mul(one.Add(slPct))
		target = price.Mul(one.Sub(tgtPct))
	}

	return TradePlan{
		Request: models.OrderRequest{
			Symbol:   symbol,
			Side:     side,
			Quantity: qty,
			Price:    price.Round(2),
			StopLoss: stopLoss.Round(2),
			Target:   target.Round(2),
		},
		Capital:          capital,
		EffectiveCapital: effective,
	}, nil
}

// Executor reads the balance, sizes the order and submits it
type Executor struct {
	gateway Gateway
	params  SizingParams
	timeout timeoutFunc
	log     zerolog.Logger
}

type timeoutFunc func(context.Context) (context.Context, context.CancelFunc)

// NewExecutor creates a trade executor
func NewExecutor(gw Gateway, params SizingParams, timeout timeoutFunc, log zerolog.Logger) *Executor {
	return &Executor{gateway: gw, params: params, timeout: timeout, log: log}
}

// Execute places one bracket order for symbol. A nil error always comes
// with a placed result.
func (x *Executor) Execute(ctx context.Context, symbol string, side models.Side, c models.Candle) (models.OrderResult, error) {
	bctx, cancel := x.timeout(ctx)
	balance, err := x.gateway.Balance(bctx)
	cancel()
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("%w: balance lookup: %v", errTradeSkipped, err)
	}

	plan, err := PlanTrade(symbol, side, balance, c, x.params)
	if err != nil {
		return models.OrderResult{}, err
	}

	req := plan.Request
	x.log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Int64("qty", req.Quantity).
		Str("price", req.Price.StringFixed(2)).
		Str("stop_loss", req.StopLoss.StringFixed(2)).
		Str("target", req.Target.StringFixed(2)).
		Float64("leverage", x.params.Leverage).
		Msg("Placing bracket order")

	octx, cancel := x.timeout(ctx)
	defer cancel()
	res, err := x.gateway.PlaceBracketOrder(octx, req)
	if err != nil {
		return res, fmt.Errorf("%w: %v", models.ErrOrder, err)
	}
	if !res.Placed {
		return res, models.ErrOrder
	}
	return res, nil
}
