package strategy

import (
	"errors"
	"sync"
	"sync/atomic"

	"breakout_bot/models"
)

var (
	// ErrBudgetExhausted means the session already placed the maximum number of trades.
	ErrBudgetExhausted = errors.New("trade budget exhausted")
	errNotWatched      = errors.New("symbol no longer on watchlist")
)

// Baseline is the opening-range high/low of a symbol
type Baseline struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// WatchlistEntry is a symbol still eligible for a trade this session
type WatchlistEntry struct {
	Symbol       string  `json:"symbol"`
	BaselineHigh float64 `json:"baseline_high"`
	BaselineLow  float64 `json:"baseline_low"`
}

// Watchlist is an insertion-ordered set safe for concurrent removal
type Watchlist struct {
	mu    sync.RWMutex
	order []string
	set   map[string]struct{}
}

// NewWatchlist builds a watchlist, dropping duplicate symbols
func NewWatchlist(symbols []string) *Watchlist {
	w := &Watchlist{set: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		if _, ok := w.set[s]; ok {
			continue
		}
		w.set[s] = struct{}{}
		w.order = append(w.order, s)
	}
	return w
}

// Snapshot returns the current symbols in insertion order
func (w *Watchlist) Snapshot() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.set))
	for _, s := range w.order {
		if _, ok := w.set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Remove deletes symbol and reports whether this call removed it
func (w *Watchlist) Remove(symbol string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.set[symbol]; !ok {
		return false
	}
	delete(w.set, symbol)
	return true
}

// Contains reports whether symbol is still watched
func (w *Watchlist) Contains(symbol string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.set[symbol]
	return ok
}

// Len returns the number of watched symbols
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.set)
}

// Session is the state of one trading day. Baselines are written once
// before the session is handed to the poll loop and only read afterwards.
type Session struct {
	Bias            models.MarketBias
	BenchmarkChange float64

	watchlist *Watchlist
	baselines map[string]Baseline

	// tradeMu spans check budget -> place order -> count -> remove symbol.
	tradeMu   sync.Mutex
	maxTrades int
	done      atomic.Int32
}

// NewSession creates a session whose watchlist holds exactly the symbols with baselines.
func NewSession(bias models.MarketBias, change float64, symbols []string, baselines map[string]Baseline, maxTrades int) *Session {
	kept := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := baselines[s]; ok {
			kept = append(kept, s)
		}
	}
	return &Session{
		Bias:            bias,
		BenchmarkChange: change,
		watchlist:       NewWatchlist(kept),
		baselines:       baselines,
		maxTrades:       maxTrades,
	}
}

// Watchlist returns the live watchlist
func (s *Session) Watchlist() *Watchlist { return s.watchlist }

// Baseline returns the opening range for symbol
func (s *Session) Baseline(symbol string) (Baseline, bool) {
	b, ok := s.baselines[symbol]
	return b, ok
}

// TradesDone returns the number of trades placed so far
func (s *Session) TradesDone() int { return int(s.done.Load()) }

// MaxTrades returns the trade ceiling
func (s *Session) MaxTrades() int { return s.maxTrades }

// BudgetExhausted reports whether the trade ceiling was reached
func (s *Session) BudgetExhausted() bool { return s.TradesDone() >= s.maxTrades }

// Entries returns the watchlist joined with its baselines
func (s *Session) Entries() []WatchlistEntry {
	symbols := s.watchlist.Snapshot()
	out := make([]WatchlistEntry, 0, len(symbols))
	for _, sym := range symbols {
		b := s.baselines[sym]
		out = append(out, WatchlistEntry{Symbol: sym, BaselineHigh: b.High, BaselineLow: b.Low})
	}
	return out
}

// ClaimTrade runs place inside the trade critical section. The budget is
// consumed and the symbol removed only when place reports a placed order;
// on failure the symbol stays eligible. It returns the new trade count.
func (s *Session) ClaimTrade(symbol string, place func() (models.OrderResult, error)) (models.OrderResult, int, error) {
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()

	if int(s.done.Load()) >= s.maxTrades {
		return models.OrderResult{}, int(s.done.Load()), ErrBudgetExhausted
	}
	if !s.watchlist.Contains(symbol) {
		return models.OrderResult{}, int(s.done.Load()), errNotWatched
	}

	res, err := place()
	if err != nil {
		return res, int(s.done.Load()), err
	}
	if !res.Placed {
		return res, int(s.done.Load()), models.ErrOrder
	}

	n := s.done.Add(1)
	s.watchlist.Remove(symbol)
	return res, int(n), nil
}
