// Package metrics exposes Prometheus collectors for the breakout engine.
//
//   - breakout_cycles_total              poll cycles executed
//   - breakout_decisions_total{action}   per-symbol outcomes (trade|invalidate|hold|no_data|error)
//   - breakout_trades_total{result}      trade attempts by result (placed|rejected|skipped)
//   - breakout_fetch_errors_total{kind}  candle fetch failures (auth|other)
//   - breakout_relogins_total            session recoveries performed
//   - breakout_watchlist_size            symbols still eligible
//   - breakout_trades_done               trade budget consumed
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "breakout_cycles_total",
			Help: "Poll cycles executed",
		},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_decisions_total",
			Help: "Per-symbol evaluation outcomes",
		},
		[]string{"action"},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_trades_total",
			Help: "Trade attempts by result",
		},
		[]string{"result"},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_fetch_errors_total",
			Help: "Candle fetch failures by kind",
		},
		[]string{"kind"},
	)

	Relogins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "breakout_relogins_total",
			Help: "Broker session recoveries performed",
		},
	)

	WatchlistSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_watchlist_size",
			Help: "Symbols still eligible for a trade",
		},
	)

	TradesDone = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_trades_done",
			Help: "Trades placed this session",
		},
	)
)

func init() {
	prometheus.MustRegister(Cycles, Decisions, Trades, FetchErrors, Relogins)
	prometheus.MustRegister(WatchlistSize, TradesDone)
}

// Handler serves the default registry in text exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}
