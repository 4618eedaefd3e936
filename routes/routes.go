package routes

import (
	"time"

	"breakout_bot/controllers"
	"breakout_bot/middleware"
	"breakout_bot/services/events"
	"breakout_bot/services/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps are the handlers' collaborators
type Deps struct {
	Engine   controllers.StatusSource
	Resolver controllers.TokenLookup
	Hub      *events.Hub
	Limiter  *middleware.RateLimiter
	DryRun   bool
	Log      zerolog.Logger
}

// SetupRoutes sets up all status routes
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestLogger(deps.Log))

	tradingController := controllers.NewTradingController(deps.Engine, deps.Resolver, deps.DryRun)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(10, 20, 10*time.Minute)
	}

	// API v1 group
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(limiter))
	{
		session := api.Group("/session")
		{
			session.GET("", tradingController.GetSession)
			session.GET("/watchlist", tradingController.GetWatchlist)
		}
		api.GET("/instruments/:symbol", tradingController.GetInstrument)
	}

	// Probes
	router.GET("/health", tradingController.Health)
	router.GET("/ready", tradingController.Ready)

	// Prometheus scrape
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Engine event stream
	if deps.Hub != nil {
		router.GET("/ws/events", func(c *gin.Context) {
			deps.Hub.HandleWebSocket(c.Writer, c.Request)
		})
	}
}
