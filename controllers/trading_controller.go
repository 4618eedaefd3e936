package controllers

import (
	"net/http"
	"strings"
	"time"

	"breakout_bot/services/strategy"

	"github.com/gin-gonic/gin"
)

// StatusSource reports the engine snapshot
type StatusSource interface {
	Status() strategy.Status
}

// TokenLookup resolves a trading symbol to its exchange token
type TokenLookup interface {
	TokenFor(symbol string) (string, bool)
}

// TradingController serves the trading session status
type TradingController struct {
	engine    StatusSource
	resolver  TokenLookup
	dryRun    bool
	startedAt time.Time
}

// NewTradingController creates a new trading controller. resolver may be nil.
func NewTradingController(engine StatusSource, resolver TokenLookup, dryRun bool) *TradingController {
	return &TradingController{
		engine:    engine,
		resolver:  resolver,
		dryRun:    dryRun,
		startedAt: time.Now(),
	}
}

// Health reports process liveness
// GET /health
func (tc *TradingController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Breakout bot is running",
		"uptime":  time.Since(tc.startedAt).Round(time.Second).String(),
	})
}

// Ready reports whether a trading session is initialized
// GET /ready
func (tc *TradingController) Ready(c *gin.Context) {
	st := tc.engine.Status()
	if !st.Initialized {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ready":        false,
			"init_outcome": st.Outcome,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "running": st.Running})
}

// GetSession returns bias, watchlist and trade budget of the session
// GET /api/v1/session
func (tc *TradingController) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data":    tc.engine.Status(),
		"dry_run": tc.dryRun,
	})
}

// GetWatchlist returns only the symbols still eligible for a trade
// GET /api/v1/session/watchlist
func (tc *TradingController) GetWatchlist(c *gin.Context) {
	st := tc.engine.Status()
	c.JSON(http.StatusOK, gin.H{
		"data":  st.Watchlist,
		"total": len(st.Watchlist),
	})
}

// GetInstrument resolves a symbol's exchange token
// GET /api/v1/instruments/:symbol
func (tc *TradingController) GetInstrument(c *gin.Context) {
	if tc.resolver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Instruments not loaded"})
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	token, ok := tc.resolver.TokenFor(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"symbol": symbol, "token": token}})
}
