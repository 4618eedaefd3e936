package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"breakout_bot/models"
)

func always(c models.Candle) func(string, int) ([]models.Candle, error) {
	return func(string, int) ([]models.Candle, error) { return []models.Candle{c}, nil }
}

func initEngine(t *testing.T, e *Engine, symbols ...string) {
	t.Helper()
	out, err := e.Init(context.Background(), symbols, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if out != InitReady {
		t.Fatalf("Init outcome = %s, want ready", out)
	}
}

func TestInitFlatBiasDoesNotStart(t *testing.T) {
	src := sourceWith(always(breakoutCandle))
	gw := &fakeGateway{balance: 10000, change: 0.03}
	e := newTestEngine(testStrategyConfig(), src, gw, &fakeScheduler{})

	out, err := e.Init(context.Background(), []string{"INFY"}, []string{"SBIN"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if out != InitFlat {
		t.Fatalf("outcome = %s, want flat", out)
	}
	if src.total() != 0 {
		t.Errorf("candle fetches = %d, want 0", src.total())
	}
	if _, err := e.Run(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Run err = %v, want ErrNotInitialized", err)
	}
}

func TestInitEmptyWatchlistDoesNotStart(t *testing.T) {
	src := &fakeSource{fn: func(int, fetchCall) ([]models.Candle, error) { return nil, nil }}
	e := newTestEngine(testStrategyConfig(), src, &fakeGateway{change: 0.5}, &fakeScheduler{})

	out, err := e.Init(context.Background(), []string{"INFY", "TCS"}, nil)
	if err != nil || out != InitNoWatchlist {
		t.Fatalf("Init = %s, %v; want no_watchlist", out, err)
	}
	if _, err := e.Run(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Run err = %v, want ErrNotInitialized", err)
	}
}

func TestInitBearishUsesBearishList(t *testing.T) {
	src := sourceWith(always(holdCandle))
	e := newTestEngine(testStrategyConfig(), src, &fakeGateway{change: -0.3}, &fakeScheduler{})

	out, err := e.Init(context.Background(), []string{"INFY"}, []string{"SBIN", "ONGC"})
	if err != nil || out != InitReady {
		t.Fatalf("Init = %s, %v", out, err)
	}
	st := e.Status()
	if st.Bias != models.BiasBearish || len(st.Watchlist) != 2 || st.Watchlist[0].Symbol != "SBIN" {
		t.Errorf("status = %+v", st)
	}
	if src.count("INFY", models.IntervalFifteenMinute) != 0 {
		t.Error("bullish list must be discarded in a bearish session")
	}
}

func TestInitDropsFailedBaselines(t *testing.T) {
	src := &fakeSource{fn: func(n int, call fetchCall) ([]models.Candle, error) {
		if call.Symbol == "BAD" {
			return nil, errors.New("HTTP 502")
		}
		return []models.Candle{{High: 100, Low: 98}}, nil
	}}
	e := newTestEngine(testStrategyConfig(), src, &fakeGateway{change: 0.2}, &fakeScheduler{})
	initEngine(t, e, "INFY", "BAD", "TCS")

	for _, entry := range e.Status().Watchlist {
		if entry.Symbol == "BAD" {
			t.Fatal("symbol with exhausted retries must not be polled")
		}
	}
	if n := len(e.Status().Watchlist); n != 2 {
		t.Errorf("watchlist = %d, want 2", n)
	}
}

func TestRunCycleBeforeInitDoesNothing(t *testing.T) {
	src := sourceWith(always(breakoutCandle))
	gw := &fakeGateway{balance: 10000, change: 0.5}
	e := newTestEngine(testStrategyConfig(), src, gw, &fakeScheduler{})

	e.RunCycle(context.Background())

	if gw.orderCount() != 0 || src.total() != 0 {
		t.Errorf("orders=%d fetches=%d, want none before Init", gw.orderCount(), src.total())
	}
}

func TestRunCycleBreakoutPlacesTrade(t *testing.T) {
	src := sourceWith(always(breakoutCandle))
	gw := &fakeGateway{balance: 10000, change: 0.5}
	e := newTestEngine(testStrategyConfig(), src, gw, &fakeScheduler{})
	initEngine(t, e, "INFY")

	e.RunCycle(context.Background())

	if gw.orderCount() != 1 {
		t.Fatalf("orders = %d, want 1", gw.orderCount())
	}
	req := gw.orders[0]
	if req.Symbol != "INFY" || req.Side != models.SideBuy || req.Quantity != 247 {
		t.Errorf("order = %+v", req)
	}
	st := e.Status()
	if st.TradesDone != 1 || len(st.Watchlist) != 0 {
		t.Errorf("trades=%d watchlist=%d, want 1/0", st.TradesDone, len(st.Watchlist))
	}

	call := src.calls[len(src.calls)-1]
	if call.Interval != models.IntervalFiveMinute || !call.From.Equal(at(9, 35, 0)) || !call.To.Equal(at(9, 40, 0)) {
		t.Errorf("poll fetch = %+v", call)
	}
}

func TestRunCycleInvalidateRemovesWithoutTrade(t *testing.T) {
	gw := &fakeGateway{balance: 10000, change: 0.5}
	e := newTestEngine(testStrategyConfig(), sourceWith(always(invalidateCandle)), gw, &fakeScheduler{})
	initEngine(t, e, "INFY", "TCS")

	e.RunCycle(context.Background())

	if gw.orderCount() != 0 {
		t.Errorf("orders = %d, want 0", gw.orderCount())
	}
	if n := len(e.Status().Watchlist); n != 0 {
		t.Errorf("watchlist = %d, want 0", n)
	}
}

func TestRunCycleFetchErrorKeepsSymbol(t *testing.T) {
	src := sourceWith(func(string, int) ([]models.Candle, error) { return nil, errors.New("HTTP 500") })
	gw := &fakeGateway{balance: 10000, change: 0.5}
	e := newTestEngine(testStrategyConfig(), src, gw, &fakeScheduler{})
	initEngine(t, e, "INFY")

	e.RunCycle(context.Background())

	if n := len(e.Status().Watchlist); n != 1 {
		t.Errorf("watchlist = %d, want 1", n)
	}
	if gw.logins.Load() != 0 {
		t.Errorf("logins = %d, want 0 for non-auth errors", gw.logins.Load())
	}
}

func TestRunCycleFailedOrderKeepsSymbol(t *testing.T) {
	gw := &fakeGateway{balance: 10000, change: 0.5, place: func(models.OrderRequest) (models.OrderResult, error) {
		return models.OrderResult{}, errors.New("AB1004 insufficient margin")
	}}
	e := newTestEngine(testStrategyConfig(), sourceWith(always(breakoutCandle)), gw, &fakeScheduler{})
	initEngine(t, e, "INFY")

	e.RunCycle(context.Background())

	st := e.Status()
	if st.TradesDone != 0 || len(st.Watchlist) != 1 {
		t.Errorf("trades=%d watchlist=%d, want 0/1", st.TradesDone, len(st.Watchlist))
	}
}

func TestRunCycleAuthErrorRecoversOnce(t *testing.T) {
	tests := []struct {
		name      string
		poll      func(string, int) ([]models.Candle, error)
		watchlist int
	}{
		{
			name: "retry succeeds",
			poll: func(_ string, n int) ([]models.Candle, error) {
				if n == 1 {
					return nil, models.ErrAuth
				}
				return []models.Candle{invalidateCandle}, nil
			},
			watchlist: 0,
		},
		{
			name: "retry fails",
			poll: func(string, int) ([]models.Candle, error) {
				return nil, errors.New("Invalid Token")
			},
			watchlist: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sourceWith(tt.poll)
			gw := &fakeGateway{balance: 10000, change: 0.5}
			e := newTestEngine(testStrategyConfig(), src, gw, &fakeScheduler{})
			initEngine(t, e, "INFY")

			e.RunCycle(context.Background())

			if n := gw.logins.Load(); n != 1 {
				t.Errorf("logins = %d, want 1", n)
			}
			if n := src.count("INFY", models.IntervalFiveMinute); n != 2 {
				t.Errorf("fetches = %d, want 2", n)
			}
			if n := len(e.Status().Watchlist); n != tt.watchlist {
				t.Errorf("watchlist = %d, want %d", n, tt.watchlist)
			}
		})
	}
}

func TestRunCycleConcurrentTradesRespectBudget(t *testing.T) {
	symbols := make([]string, 12)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%02d", i)
	}
	cfg := testStrategyConfig()
	cfg.MaxTrades = 3
	gw := &fakeGateway{balance: 10000, change: 0.5, place: func(req models.OrderRequest) (models.OrderResult, error) {
		time.Sleep(2 * time.Millisecond)
		return models.OrderResult{Placed: true, OrderID: req.Symbol}, nil
	}}
	e := newTestEngine(cfg, sourceWith(always(breakoutCandle)), gw, &fakeScheduler{})
	initEngine(t, e, symbols...)

	e.RunCycle(context.Background())

	st := e.Status()
	if st.TradesDone != 3 || gw.orderCount() != 3 {
		t.Errorf("trades=%d orders=%d, want 3/3", st.TradesDone, gw.orderCount())
	}
	if len(st.Watchlist) != 9 {
		t.Errorf("watchlist = %d, want 9", len(st.Watchlist))
	}
}

func TestRunStopsAtTradeCap(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.MaxTrades = 1
	sched := &fakeScheduler{}
	gw := &fakeGateway{balance: 10000, change: 0.5}
	e := newTestEngine(cfg, sourceWith(always(breakoutCandle)), gw, sched)
	initEngine(t, e, "INFY", "TCS", "SBIN")

	reason, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopTradeCap {
		t.Errorf("reason = %s, want trade_cap", reason)
	}
	if gw.orderCount() != 1 {
		t.Errorf("orders = %d, want 1", gw.orderCount())
	}
	if !sched.first.Equal(at(9, 45, 1)) {
		t.Errorf("first poll = %s, want 09:45:01", sched.first.Format("15:04:05"))
	}
	st := e.Status()
	if st.Running || st.StopReason != StopTradeCap {
		t.Errorf("status after stop = %+v", st)
	}
	if _, err := e.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

func TestRunStopsWhenWatchlistEmpty(t *testing.T) {
	gw := &fakeGateway{balance: 10000, change: 0.5}
	e := newTestEngine(testStrategyConfig(), sourceWith(always(invalidateCandle)), gw, &fakeScheduler{})
	initEngine(t, e, "INFY", "TCS")

	reason, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopWatchlistEmpty {
		t.Errorf("reason = %s, want watchlist_empty", reason)
	}
	if gw.orderCount() != 0 {
		t.Errorf("orders = %d, want 0", gw.orderCount())
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	sched := &fakeScheduler{}
	e := newTestEngine(testStrategyConfig(), sourceWith(always(holdCandle)), &fakeGateway{change: 0.5}, sched)
	initEngine(t, e, "INFY")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopCancelled {
		t.Errorf("reason = %s, want cancelled", reason)
	}
	if sched.ticks.Load() == 0 {
		t.Error("expected at least one cycle before cancel")
	}
	if n := len(e.Status().Watchlist); n != 1 {
		t.Errorf("watchlist = %d, want 1", n)
	}
}

func TestRunCycleRecoversPanic(t *testing.T) {
	src := sourceWith(func(string, int) ([]models.Candle, error) { panic("decoder bug") })
	e := newTestEngine(testStrategyConfig(), src, &fakeGateway{change: 0.5}, &fakeScheduler{})
	initEngine(t, e, "INFY")

	e.RunCycle(context.Background())

	if n := len(e.Status().Watchlist); n != 1 {
		t.Errorf("watchlist = %d, want 1", n)
	}
}
