package strategy

import (
	"context"
	"sync"
	"time"

	"breakout_bot/models"
	"breakout_bot/services/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// recovery re-establishes the broker session after auth failures. Concurrent
// failures in one cycle share a single login.
type recovery struct {
	gateway Gateway
	pause   time.Duration
	timeout timeoutFunc
	log     zerolog.Logger

	group     singleflight.Group
	mu        sync.Mutex
	lastLogin time.Time
	now       func() time.Time
}

func newRecovery(gw Gateway, pause time.Duration, timeout timeoutFunc, now func() time.Time, log zerolog.Logger) *recovery {
	return &recovery{gateway: gw, pause: pause, timeout: timeout, now: now, log: log}
}

// relogin logs in again unless a login already completed after failedAt
func (r *recovery) relogin(ctx context.Context, failedAt time.Time) error {
	r.mu.Lock()
	fresh := r.lastLogin.After(failedAt)
	r.mu.Unlock()
	if fresh {
		return nil
	}

	_, err, _ := r.group.Do("login", func() (interface{}, error) {
		lctx, cancel := r.timeout(ctx)
		defer cancel()
		if err := r.gateway.Login(lctx); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.lastLogin = r.now()
		r.mu.Unlock()
		metrics.Relogins.Inc()
		r.log.Info().Msg("Broker session re-established")
		return nil, nil
	})
	return err
}

// fetch runs fn and, on an auth-class failure, re-logs in, pauses and
// retries fn exactly once.
func (r *recovery) fetch(ctx context.Context, symbol string, fn func(context.Context) ([]models.Candle, error)) ([]models.Candle, error) {
	started := r.now()
	candles, err := r.call(ctx, fn)
	if err == nil || !models.IsAuthError(err) {
		return candles, err
	}

	metrics.FetchErrors.WithLabelValues("auth").Inc()
	r.log.Warn().Err(err).Str("symbol", symbol).Msg("Session invalid, re-logging in")

	if lerr := r.relogin(ctx, started); lerr != nil {
		r.log.Error().Err(lerr).Str("symbol", symbol).Msg("Re-login failed")
	}
	if err := sleepCtx(ctx, r.pause); err != nil {
		return nil, err
	}
	return r.call(ctx, fn)
}

func (r *recovery) call(ctx context.Context, fn func(context.Context) ([]models.Candle, error)) ([]models.Candle, error) {
	cctx, cancel := r.timeout(ctx)
	defer cancel()
	return fn(cctx)
}
