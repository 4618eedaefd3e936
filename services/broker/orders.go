package broker

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"breakout_bot/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlaceBracketOrder submits a ROBO limit order with stop-loss and target
// legs. SmartAPI takes both legs as point distances from the entry price.
func (c *Client) PlaceBracketOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	token, ok := c.TokenFor(req.Symbol)
	if !ok {
		return models.OrderResult{}, fmt.Errorf("no instrument for %s: %w", req.Symbol, models.ErrUnknownSymbol)
	}

	stopPts := req.Price.Sub(req.StopLoss).Abs()
	targetPts := req.Target.Sub(req.Price).Abs()

	data, err := c.call(ctx, http.MethodPost, placeOrder, map[string]string{
		"variety":         "ROBO",
		"tradingsymbol":   req.Symbol + "-EQ",
		"symboltoken":     token,
		"transactiontype": string(req.Side),
		"exchange":        c.cfg.Exchange,
		"ordertype":       "LIMIT",
		"producttype":     "BO",
		"duration":        "DAY",
		"price":           req.Price.StringFixed(2),
		"quantity":        strconv.FormatInt(req.Quantity, 10),
		"stoploss":        stopPts.StringFixed(2),
		"squareoff":       targetPts.StringFixed(2),
	}, true)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("place order %s: %w", req.Symbol, err)
	}

	id := data.Get("orderid").String()
	if id == "" {
		return models.OrderResult{}, fmt.Errorf("place order %s: no order id returned", req.Symbol)
	}
	return models.OrderResult{Placed: true, OrderID: id}, nil
}

// PaperGateway reads live data through the client but only simulates
// order placement.
type PaperGateway struct {
	*Client
	log zerolog.Logger
}

// NewPaperGateway wraps client for dry runs
func NewPaperGateway(client *Client, log zerolog.Logger) *PaperGateway {
	return &PaperGateway{Client: client, log: log.With().Str("component", "paper").Logger()}
}

// PlaceBracketOrder records the order and reports it placed
func (p *PaperGateway) PlaceBracketOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	id := "PAPER-" + uuid.NewString()
	p.log.Info().
		Str("order_id", id).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int64("qty", req.Quantity).
		Str("price", req.Price.StringFixed(2)).
		Str("stop_loss", req.StopLoss.StringFixed(2)).
		Str("target", req.Target.StringFixed(2)).
		Msg("Paper order placed")
	return models.OrderResult{Placed: true, OrderID: id}, nil
}
