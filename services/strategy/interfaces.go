package strategy

import (
	"context"
	"time"

	"breakout_bot/models"
)

// CandleSource returns OHLCV candles for a symbol and time window
type CandleSource interface {
	Candles(ctx context.Context, symbol string, interval models.Interval, from, to time.Time) ([]models.Candle, error)
}

// Gateway is the broker surface the engine trades through
type Gateway interface {
	Login(ctx context.Context) error
	Balance(ctx context.Context) (float64, error)
	BenchmarkChangePercent(ctx context.Context) (float64, error)
	PlaceBracketOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
}

// Scheduler drives poll cycles and the liveness beat
type Scheduler interface {
	SchedulePoll(first time.Time, period time.Duration, cycle func()) error
	ScheduleLiveness(interval time.Duration, beat func()) error
	Start()
	// Stop prevents new runs and waits for a running cycle to return.
	Stop()
	NextPoll() time.Time
}

// EventSink receives engine events for external subscribers
type EventSink interface {
	Publish(kind string, data interface{})
}

type nopSink struct{}

func (nopSink) Publish(string, interface{}) {}
