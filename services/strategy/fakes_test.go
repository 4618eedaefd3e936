package strategy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"breakout_bot/config"
	"breakout_bot/models"

	"github.com/rs/zerolog"
)

var ist = mustLocation("Asia/Kolkata")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(hour, min, sec int) time.Time {
	return time.Date(2024, 3, 12, hour, min, sec, 0, ist)
}

type fetchCall struct {
	Symbol   string
	Interval models.Interval
	From, To time.Time
}

type fakeSource struct {
	mu    sync.Mutex
	calls []fetchCall
	fn    func(n int, call fetchCall) ([]models.Candle, error)
}

func (f *fakeSource) Candles(_ context.Context, symbol string, interval models.Interval, from, to time.Time) ([]models.Candle, error) {
	call := fetchCall{Symbol: symbol, Interval: interval, From: from, To: to}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	n := 0
	for _, c := range f.calls {
		if c.Symbol == symbol && c.Interval == interval {
			n++
		}
	}
	f.mu.Unlock()
	return f.fn(n, call)
}

func (f *fakeSource) count(symbol string, interval models.Interval) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Symbol == symbol && c.Interval == interval {
			n++
		}
	}
	return n
}

func (f *fakeSource) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGateway struct {
	mu      sync.Mutex
	balance float64
	change  float64
	logins  atomic.Int32
	orders  []models.OrderRequest
	place   func(req models.OrderRequest) (models.OrderResult, error)
}

func (g *fakeGateway) Login(context.Context) error {
	g.logins.Add(1)
	return nil
}

func (g *fakeGateway) Balance(context.Context) (float64, error) { return g.balance, nil }

func (g *fakeGateway) BenchmarkChangePercent(context.Context) (float64, error) {
	return g.change, nil
}

func (g *fakeGateway) PlaceBracketOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	g.mu.Lock()
	g.orders = append(g.orders, req)
	g.mu.Unlock()
	if g.place != nil {
		return g.place(req)
	}
	return models.OrderResult{Placed: true, OrderID: "ORD-" + req.Symbol}, nil
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

// fakeScheduler runs cycles back to back on one goroutine until stopped
type fakeScheduler struct {
	cycle    func()
	first    time.Time
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	ticks    atomic.Int32
}

func (f *fakeScheduler) SchedulePoll(first time.Time, _ time.Duration, cycle func()) error {
	f.first = first
	f.cycle = cycle
	return nil
}

func (f *fakeScheduler) ScheduleLiveness(time.Duration, func()) error { return nil }

func (f *fakeScheduler) Start() {
	f.stop = make(chan struct{})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-f.stop:
				return
			default:
			}
			f.cycle()
			f.ticks.Add(1)
			time.Sleep(time.Millisecond)
		}
	}()
}

func (f *fakeScheduler) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
	f.wg.Wait()
}

func (f *fakeScheduler) NextPoll() time.Time { return f.first }

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		MaxTrades:           2,
		PollPeriod:          10 * time.Millisecond,
		Leverage:            5,
		CapitalFraction:     0.5,
		BreakoutRangeMaxPct: 0.5,
		BiasThresholdPct:    0.04,
		BaselineRetries:     3,
		BaselineBaseDelay:   time.Millisecond,
		MinEffectiveCapital: 1000,
		StopLossPct:         0.5,
		TargetPct:           0.75,
		ReloginPause:        time.Millisecond,
		CallTimeout:         time.Second,
		MinPoolSize:         5,
	}
}

func newTestEngine(cfg config.StrategyConfig, src CandleSource, gw Gateway, sched Scheduler) *Engine {
	return NewEngine(cfg, config.Clock{Hour: 9, Minute: 35, Second: 1}, ist, Deps{
		Source:    src,
		Gateway:   gw,
		Scheduler: sched,
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return at(9, 40, 0) },
	})
}

// opening range 100/98 for every symbol, then the given poll candle
func sourceWith(poll func(symbol string, n int) ([]models.Candle, error)) *fakeSource {
	return &fakeSource{fn: func(n int, call fetchCall) ([]models.Candle, error) {
		if call.Interval == models.IntervalFifteenMinute {
			return []models.Candle{{Time: call.From, Open: 99, High: 100, Low: 98, Close: 99.5}}, nil
		}
		return poll(call.Symbol, n)
	}}
}

var (
	breakoutCandle   = models.Candle{Open: 100.9, High: 101.2, Low: 100.8, Close: 101}
	holdCandle       = models.Candle{Open: 99, High: 99.8, Low: 98.5, Close: 99.5}
	invalidateCandle = models.Candle{Open: 98.4, High: 98.6, Low: 97.9, Close: 98.1}
)
