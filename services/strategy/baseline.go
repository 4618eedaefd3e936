package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakout_bot/models"

	"github.com/rs/zerolog"
)

// BaselinePolicy controls baseline acquisition retries
type BaselinePolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// Warmup is waited before every fetch attempt to stay under upstream rate limits.
	Warmup time.Duration
}

// BaselineBuilder fetches the opening-range candle for every candidate
type BaselineBuilder struct {
	source  CandleSource
	policy  BaselinePolicy
	timeout timeoutFunc
	events  EventSink
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewBaselineBuilder creates a builder over source
func NewBaselineBuilder(source CandleSource, policy BaselinePolicy, timeout timeoutFunc, events EventSink, log zerolog.Logger) *BaselineBuilder {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &BaselineBuilder{source: source, policy: policy, timeout: timeout, events: events, log: log, sleep: sleepCtx}
}

// Build returns baselines for the symbols that produced an opening candle.
// Symbols with no data or exhausted retries are left out. Only context
// cancellation aborts the batch.
func (b *BaselineBuilder) Build(ctx context.Context, symbols []string, now time.Time) (map[string]Baseline, error) {
	from, to := OpeningWindow(now)
	out := make(map[string]Baseline, len(symbols))

	for _, sym := range symbols {
		base, err := b.acquire(ctx, sym, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			b.log.Warn().Err(err).Str("symbol", sym).Msg("Dropping symbol, no baseline")
			continue
		}
		out[sym] = base
		b.log.Info().
			Str("symbol", sym).
			Float64("baseline_high", base.High).
			Float64("baseline_low", base.Low).
			Msg("Baseline recorded")
		b.events.Publish("baseline", WatchlistEntry{Symbol: sym, BaselineHigh: base.High, BaselineLow: base.Low})
	}
	return out, nil
}

func (b *BaselineBuilder) acquire(ctx context.Context, sym string, from, to time.Time) (Baseline, error) {
	var lastErr error
	for attempt := 1; attempt <= b.policy.Attempts; attempt++ {
		if attempt > 1 {
			if err := b.sleep(ctx, time.Duration(attempt)*b.policy.BaseDelay); err != nil {
				return Baseline{}, err
			}
		}
		if err := b.sleep(ctx, b.policy.Warmup); err != nil {
			return Baseline{}, err
		}

		fctx, cancel := b.timeout(ctx)
		candles, err := b.source.Candles(fctx, sym, models.IntervalFifteenMinute, from, to)
		cancel()

		switch {
		case err == nil && len(candles) == 0:
			return Baseline{}, fmt.Errorf("%s: %w", sym, models.ErrDataUnavailable)
		case err == nil:
			c := candles[0]
			return Baseline{High: c.High, Low: c.Low}, nil
		case errors.Is(err, models.ErrUnknownSymbol):
			return Baseline{}, err
		}

		lastErr = err
		b.log.Warn().
			Err(err).
			Str("symbol", sym).
			Int("attempt", attempt).
			Int("max_attempts", b.policy.Attempts).
			Msg("Baseline fetch failed")
		if ctx.Err() != nil {
			return Baseline{}, ctx.Err()
		}
	}
	return Baseline{}, fmt.Errorf("%s: baseline retries exhausted: %w", sym, lastErr)
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
