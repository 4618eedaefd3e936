package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"breakout_bot/models"
)

// Candles returns OHLCV candles for symbol between from and to
func (c *Client) Candles(ctx context.Context, symbol string, interval models.Interval, from, to time.Time) ([]models.Candle, error) {
	token, ok := c.TokenFor(symbol)
	if !ok {
		return nil, fmt.Errorf("no instrument for %s: %w", symbol, models.ErrUnknownSymbol)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("candle throttle: %w", err)
	}

	data, err := c.call(ctx, http.MethodPost, candlePath, map[string]string{
		"exchange":    c.cfg.Exchange,
		"symboltoken": token,
		"interval":    string(interval),
		"fromdate":    from.Format(candleStamp),
		"todate":      to.Format(candleStamp),
	}, true)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", symbol, err)
	}

	rows := data.Array()
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		f := row.Array()
		if len(f) < 6 {
			return nil, fmt.Errorf("candles %s: malformed row %s", symbol, row.Raw)
		}
		ts, err := time.Parse(time.RFC3339, f[0].String())
		if err != nil {
			return nil, fmt.Errorf("candles %s: bad timestamp %q: %w", symbol, f[0].String(), err)
		}
		candles = append(candles, models.Candle{
			Time:   ts.In(from.Location()),
			Open:   f[1].Float(),
			High:   f[2].Float(),
			Low:    f[3].Float(),
			Close:  f[4].Float(),
			Volume: f[5].Float(),
		})
	}
	return candles, nil
}

// Balance returns the net available margin from the RMS endpoint
func (c *Client) Balance(ctx context.Context) (float64, error) {
	data, err := c.call(ctx, http.MethodGet, rmsPath, nil, true)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	if !data.Get("net").Exists() {
		return 0, fmt.Errorf("balance: response has no net field")
	}
	return data.Get("net").Float(), nil
}

// Quote is the last traded price with the previous close
type Quote struct {
	LTP   float64
	Close float64
}

// LTP returns the last traded price of an instrument
func (c *Client) LTP(ctx context.Context, tradingSymbol, token string) (Quote, error) {
	data, err := c.call(ctx, http.MethodPost, ltpPath, map[string]string{
		"exchange":      c.cfg.Exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   token,
	}, true)
	if err != nil {
		return Quote{}, fmt.Errorf("ltp %s: %w", tradingSymbol, err)
	}
	return Quote{LTP: data.Get("ltp").Float(), Close: data.Get("close").Float()}, nil
}

// BenchmarkChangePercent returns the benchmark index move from the
// previous close in percent, zero when no close is known.
func (c *Client) BenchmarkChangePercent(ctx context.Context) (float64, error) {
	q, err := c.LTP(ctx, c.cfg.BenchmarkSymbol, c.cfg.BenchmarkToken)
	if err != nil {
		return 0, fmt.Errorf("benchmark: %w", err)
	}
	if q.Close == 0 {
		return 0, nil
	}
	change := (q.LTP - q.Close) / q.Close * 100
	c.log.Info().
		Str("benchmark", c.cfg.BenchmarkSymbol).
		Float64("ltp", q.LTP).
		Float64("close", q.Close).
		Float64("change_pct", change).
		Msg("Benchmark quote")
	return change, nil
}
