package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"breakout_bot/config"
	"breakout_bot/models"
	"breakout_bot/services/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotInitialized means Run was called without a ready session.
	ErrNotInitialized = errors.New("engine not initialized")
	errAlreadyStarted = errors.New("engine already started")
)

// InitOutcome is the result of session initialization
type InitOutcome string

const (
	InitReady       InitOutcome = "ready"
	InitFlat        InitOutcome = "flat"
	InitNoWatchlist InitOutcome = "no_watchlist"
)

// StopReason tells the supervisor why Run returned
type StopReason string

const (
	StopTradeCap       StopReason = "trade_cap"
	StopWatchlistEmpty StopReason = "watchlist_empty"
	StopCancelled      StopReason = "cancelled"
)

// Deps are the collaborators the engine drives
type Deps struct {
	Source    CandleSource
	Gateway   Gateway
	Scheduler Scheduler
	Events    EventSink
	Log       zerolog.Logger
	// Now defaults to time.Now in the market location.
	Now func() time.Time
}

// Status is a point-in-time view of the engine
type Status struct {
	Initialized     bool              `json:"initialized"`
	Running         bool              `json:"running"`
	Outcome         InitOutcome       `json:"init_outcome,omitempty"`
	Bias            models.MarketBias `json:"bias,omitempty"`
	BenchmarkChange float64           `json:"benchmark_change_pct"`
	Watchlist       []WatchlistEntry  `json:"watchlist"`
	TradesDone      int               `json:"trades_done"`
	MaxTrades       int               `json:"max_trades"`
	StopReason      StopReason        `json:"stop_reason,omitempty"`
	NextPoll        *time.Time        `json:"next_poll,omitempty"`
}

// Engine owns one trading session: initialization, the poll loop and
// termination.
type Engine struct {
	cfg       config.StrategyConfig
	firstPoll config.Clock
	deps      Deps
	log       zerolog.Logger

	baselines *BaselineBuilder
	executor  *Executor
	recovery  *recovery

	mu       sync.RWMutex
	session  *Session
	outcome  InitOutcome
	started  bool
	running  bool
	reason   StopReason
	doneOnce sync.Once
	done     chan struct{}
}

// NewEngine wires an engine. The market location is taken from loc.
func NewEngine(cfg config.StrategyConfig, firstPoll config.Clock, loc *time.Location, deps Deps) *Engine {
	if deps.Events == nil {
		deps.Events = nopSink{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().In(loc) }
	}
	if cfg.MinPoolSize < 1 {
		cfg.MinPoolSize = 1
	}
	log := deps.Log.With().Str("component", "engine").Logger()

	e := &Engine{
		cfg:       cfg,
		firstPoll: firstPoll,
		deps:      deps,
		log:       log,
		done:      make(chan struct{}),
	}
	e.baselines = NewBaselineBuilder(deps.Source, BaselinePolicy{
		Attempts:  cfg.BaselineRetries,
		BaseDelay: cfg.BaselineBaseDelay,
		Warmup:    cfg.BaselineWarmup,
	}, e.withTimeout, deps.Events, log)
	e.executor = NewExecutor(deps.Gateway, SizingFromConfig(cfg), e.withTimeout, log)
	e.recovery = newRecovery(deps.Gateway, cfg.ReloginPause, e.withTimeout, time.Now, log)
	return e
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

// Init selects the session bias and builds the watchlist baselines. Flat
// bias and an empty watchlist are normal outcomes, not errors.
func (e *Engine) Init(ctx context.Context, bullish, bearish []string) (InitOutcome, error) {
	e.mu.RLock()
	started := e.started
	e.mu.RUnlock()
	if started {
		return "", errAlreadyStarted
	}

	bctx, cancel := e.withTimeout(ctx)
	change, err := e.deps.Gateway.BenchmarkChangePercent(bctx)
	cancel()
	if err != nil {
		return "", fmt.Errorf("benchmark change: %w", err)
	}

	bias := SelectBias(change, e.cfg.BiasThresholdPct)
	e.log.Info().
		Float64("benchmark_change_pct", change).
		Str("bias", string(bias)).
		Msg("Market bias selected")

	if bias == models.BiasFlat {
		e.setOutcome(InitFlat, nil)
		return InitFlat, nil
	}

	candidates := Candidates(bias, bullish, bearish)
	baselines, err := e.baselines.Build(ctx, candidates, e.deps.Now())
	if err != nil {
		return "", fmt.Errorf("baseline build: %w", err)
	}

	session := NewSession(bias, change, candidates, baselines, e.cfg.MaxTrades)
	metrics.WatchlistSize.Set(float64(session.Watchlist().Len()))
	metrics.TradesDone.Set(0)

	if session.Watchlist().Len() == 0 {
		e.log.Warn().Int("candidates", len(candidates)).Msg("No symbol produced a baseline, not starting")
		e.setOutcome(InitNoWatchlist, nil)
		return InitNoWatchlist, nil
	}

	if bias == models.BiasBearish && !e.cfg.BracketBySide {
		e.log.Warn().Msg("Bearish session uses long-style brackets; set BRACKET_BY_SIDE to mirror them")
	}
	e.log.Info().
		Int("watchlist", session.Watchlist().Len()).
		Int("dropped", len(candidates)-session.Watchlist().Len()).
		Msg("Engine initialized")
	e.setOutcome(InitReady, session)
	return InitReady, nil
}

func (e *Engine) setOutcome(o InitOutcome, s *Session) {
	e.mu.Lock()
	e.outcome = o
	e.session = s
	e.mu.Unlock()
}

func (e *Engine) currentSession() *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// Run starts polling and blocks until a terminal condition or ctx is done.
// The scheduler is stopped before Run returns; a running cycle finishes.
func (e *Engine) Run(ctx context.Context) (StopReason, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return "", ErrNotInitialized
	}
	if e.started {
		e.mu.Unlock()
		return "", errAlreadyStarted
	}
	e.started = true
	e.running = true
	e.mu.Unlock()

	// Cycles outlive ctx so an order in flight is not cut off.
	cycleCtx := context.WithoutCancel(ctx)
	first := NextPollTime(e.deps.Now(), e.firstPoll)

	if err := e.deps.Scheduler.SchedulePoll(first, e.cfg.PollPeriod, func() { e.RunCycle(cycleCtx) }); err != nil {
		e.markStopped("")
		return "", fmt.Errorf("schedule poll: %w", err)
	}
	if e.cfg.LivenessInterval > 0 {
		if err := e.deps.Scheduler.ScheduleLiveness(e.cfg.LivenessInterval, e.beat); err != nil {
			e.markStopped("")
			return "", fmt.Errorf("schedule liveness: %w", err)
		}
	}

	e.log.Info().
		Time("first_poll", first).
		Dur("period", e.cfg.PollPeriod).
		Msg("Poll loop scheduled")
	e.deps.Scheduler.Start()

	select {
	case <-e.done:
	case <-ctx.Done():
		e.terminate(StopCancelled)
	}
	e.deps.Scheduler.Stop()

	reason := e.stopReason()
	s := e.currentSession()
	e.log.Warn().
		Str("reason", string(reason)).
		Int("trades_done", s.TradesDone()).
		Int("max_trades", s.MaxTrades()).
		Int("watchlist", s.Watchlist().Len()).
		Msg("Engine stopped")
	e.deps.Events.Publish("stopped", map[string]interface{}{
		"reason":      reason,
		"trades_done": s.TradesDone(),
	})
	e.markStopped(reason)
	return reason, nil
}

func (e *Engine) terminate(reason StopReason) {
	e.doneOnce.Do(func() {
		e.mu.Lock()
		e.reason = reason
		e.mu.Unlock()
		close(e.done)
	})
}

func (e *Engine) stopReason() StopReason {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reason
}

func (e *Engine) markStopped(reason StopReason) {
	e.mu.Lock()
	e.running = false
	if reason != "" {
		e.reason = reason
	}
	e.mu.Unlock()
}

// Done is closed once a terminal condition is reached
func (e *Engine) Done() <-chan struct{} { return e.done }

// checkTerminal stops the session when the budget or the watchlist is used up
func (e *Engine) checkTerminal(s *Session) bool {
	switch {
	case s.BudgetExhausted():
		e.terminate(StopTradeCap)
		return true
	case s.Watchlist().Len() == 0:
		e.terminate(StopWatchlistEmpty)
		return true
	}
	return false
}

// RunCycle evaluates every watched symbol once and waits for all of them.
func (e *Engine) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("Poll cycle panicked")
		}
	}()

	s := e.currentSession()
	if s == nil {
		e.log.Warn().Msg("Poll cycle before initialization, skipping")
		return
	}
	select {
	case <-e.done:
		return
	default:
	}
	if e.checkTerminal(s) {
		return
	}

	cycleID := uuid.NewString()
	log := e.log.With().Str("cycle", cycleID).Logger()
	symbols := s.Watchlist().Snapshot()
	started := time.Now()
	metrics.Cycles.Inc()

	g := new(errgroup.Group)
	g.SetLimit(max(e.cfg.MinPoolSize, len(symbols)))
	for _, sym := range symbols {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("symbol", sym).Msg("Evaluation panicked")
					metrics.Decisions.WithLabelValues("error").Inc()
				}
			}()
			e.evaluate(ctx, log, s, sym)
			return nil
		})
	}
	_ = g.Wait()

	metrics.WatchlistSize.Set(float64(s.Watchlist().Len()))
	metrics.TradesDone.Set(float64(s.TradesDone()))
	log.Info().
		Int("symbols", len(symbols)).
		Int("watchlist", s.Watchlist().Len()).
		Int("trades_done", s.TradesDone()).
		Dur("elapsed", time.Since(started)).
		Msg("Poll cycle complete")
	e.deps.Events.Publish("cycle", map[string]interface{}{
		"cycle":       cycleID,
		"evaluated":   len(symbols),
		"watchlist":   s.Watchlist().Len(),
		"trades_done": s.TradesDone(),
	})

	e.checkTerminal(s)
}

func (e *Engine) evaluate(ctx context.Context, log zerolog.Logger, s *Session, sym string) {
	base, ok := s.Baseline(sym)
	if !ok {
		return
	}
	from, to := AlignedWindow(e.deps.Now())

	candles, err := e.recovery.fetch(ctx, sym, func(c context.Context) ([]models.Candle, error) {
		return e.deps.Source.Candles(c, sym, models.IntervalFiveMinute, from, to)
	})
	if err != nil {
		if !models.IsAuthError(err) {
			metrics.FetchErrors.WithLabelValues("other").Inc()
		}
		metrics.Decisions.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("symbol", sym).Msg("Candle fetch failed")
		return
	}
	if len(candles) == 0 {
		metrics.Decisions.WithLabelValues("no_data").Inc()
		log.Debug().Str("symbol", sym).Time("from", from).Time("to", to).Msg("No candle for window")
		return
	}

	c := candles[0]
	d := Decide(s.Bias, base, c, e.cfg.BreakoutRangeMaxPct)

	switch d.Action {
	case ActionHold:
		metrics.Decisions.WithLabelValues("hold").Inc()
		log.Debug().
			Str("symbol", sym).
			Float64("close", c.Close).
			Float64("range_pct", d.RangePct).
			Msg("Holding")

	case ActionInvalidate:
		if !s.Watchlist().Remove(sym) {
			return
		}
		metrics.Decisions.WithLabelValues("invalidate").Inc()
		log.Info().
			Str("symbol", sym).
			Str("action", string(d.Action)).
			Float64("high", c.High).
			Float64("low", c.Low).
			Str("reason", d.Reason).
			Msg("Symbol invalidated")
		e.deps.Events.Publish("removed", map[string]interface{}{"symbol": sym, "reason": d.Reason})

	case ActionTrade:
		metrics.Decisions.WithLabelValues("trade").Inc()
		log.Info().
			Str("symbol", sym).
			Str("action", string(d.Action)).
			Str("side", string(d.Side)).
			Float64("close", c.Close).
			Float64("range_pct", d.RangePct).
			Msg("Breakout signal")
		e.deps.Events.Publish("decision", map[string]interface{}{
			"symbol": sym, "side": d.Side, "close": c.Close, "range_pct": d.RangePct,
		})
		e.trade(ctx, log, s, sym, d.Side, c)
	}
}

func (e *Engine) trade(ctx context.Context, log zerolog.Logger, s *Session, sym string, side models.Side, c models.Candle) {
	res, n, err := s.ClaimTrade(sym, func() (models.OrderResult, error) {
		return e.executor.Execute(ctx, sym, side, c)
	})
	switch {
	case err == nil:
		metrics.Trades.WithLabelValues("placed").Inc()
		metrics.TradesDone.Set(float64(n))
		log.Info().
			Str("symbol", sym).
			Str("side", string(side)).
			Str("order_id", res.OrderID).
			Int("trades_done", n).
			Int("max_trades", s.MaxTrades()).
			Msg("Trade placed")
		e.deps.Events.Publish("trade", map[string]interface{}{
			"symbol": sym, "side": side, "order_id": res.OrderID, "trades_done": n,
		})
	case errors.Is(err, ErrBudgetExhausted), errors.Is(err, errNotWatched), errors.Is(err, errTradeSkipped):
		metrics.Trades.WithLabelValues("skipped").Inc()
		log.Warn().Err(err).Str("symbol", sym).Int("trades_done", n).Msg("Trade skipped")
	default:
		metrics.Trades.WithLabelValues("rejected").Inc()
		log.Error().Err(err).Str("symbol", sym).Msg("Order failed, symbol stays on watchlist")
	}
}

func (e *Engine) beat() {
	e.log.Debug().Msg("Engine alive")
}

// Status returns a snapshot for the status API
func (e *Engine) Status() Status {
	e.mu.RLock()
	st := Status{
		Initialized: e.session != nil,
		Running:     e.running,
		Outcome:     e.outcome,
		StopReason:  e.reason,
		MaxTrades:   e.cfg.MaxTrades,
		Watchlist:   []WatchlistEntry{},
	}
	s := e.session
	running := e.running
	e.mu.RUnlock()

	if s != nil {
		st.Bias = s.Bias
		st.BenchmarkChange = s.BenchmarkChange
		st.Watchlist = s.Entries()
		st.TradesDone = s.TradesDone()
	}
	if running {
		if next := e.deps.Scheduler.NextPoll(); !next.IsZero() {
			st.NextPoll = &next
		}
	}
	return st
}
