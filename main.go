package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breakout_bot/config"
	"breakout_bot/middleware"
	"breakout_bot/routes"
	"breakout_bot/scheduler"
	"breakout_bot/services/broker"
	"breakout_bot/services/events"
	"breakout_bot/services/instruments"
	"breakout_bot/services/logger"
	"breakout_bot/services/strategy"
	"breakout_bot/services/universe"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := logger.New("info")
		boot.Error().Err(err).Msg("Configuration invalid")
		return 1
	}
	log := logger.New(cfg.LogLevel)
	log.Info().
		Str("environment", cfg.Environment).
		Bool("dry_run", cfg.DryRun).
		Int("max_trades", cfg.Strategy.MaxTrades).
		Msg("Breakout bot starting")

	// Already validated by LoadConfig
	loc, _ := cfg.Location()
	startAt, _ := config.ParseClock(cfg.StartAt)
	firstPoll, _ := config.ParseClock(cfg.FirstPollAt)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(log)
	go hub.Run()
	defer hub.Shutdown()

	client := broker.NewClient(cfg.Broker, nil, log)
	var gateway strategy.Gateway = client
	if cfg.DryRun {
		gateway = broker.NewPaperGateway(client, log)
		log.Warn().Msg("DRY_RUN enabled, orders are simulated")
	}

	jobs := scheduler.NewScheduler(loc, log)
	engine := strategy.NewEngine(cfg.Strategy, firstPoll, loc, strategy.Deps{
		Source:    client,
		Gateway:   gateway,
		Scheduler: jobs,
		Events:    hub,
		Log:       log,
	})

	limiterStop := make(chan struct{})
	defer close(limiterStop)
	server := newServer(cfg, engine, client, hub, limiterStop, log)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Status server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Status server error")
		}
	}()
	defer shutdownServer(server, log)

	now := time.Now().In(loc)
	if !scheduler.TradingDay(now) {
		log.Warn().Str("weekday", now.Weekday().String()).Msg("Starting on a non-trading day")
	}
	if err := waitUntil(ctx, startAt.On(now), log); err != nil {
		log.Warn().Msg("Interrupted before session start")
		return 0
	}

	if err := login(ctx, client, cfg.Strategy.CallTimeout); err != nil {
		log.Error().Err(err).Msg("Broker login failed")
		return 1
	}

	db, resolver, err := setupInstruments(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Instrument setup failed")
		return 1
	}
	defer closeDB(db, log)
	client.SetResolver(resolver)

	u, err := universe.Load(cfg.Universe)
	if err != nil {
		log.Error().Err(err).Msg("Candidate universe invalid")
		return 1
	}
	log.Info().
		Int("bullish", len(u.Bullish)).
		Int("bearish", len(u.Bearish)).
		Msg("Candidate universe loaded")

	outcome, err := engine.Init(ctx, u.Bullish, u.Bearish)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Msg("Interrupted during initialization")
			return 0
		}
		log.Error().Err(err).Msg("Engine initialization failed")
		return 1
	}
	if outcome != strategy.InitReady {
		log.Warn().Str("outcome", string(outcome)).Msg("No trading session today")
		return 0
	}

	reason, err := engine.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Engine run failed")
		return 1
	}
	st := engine.Status()
	log.Warn().
		Str("reason", string(reason)).
		Int("trades_done", st.TradesDone).
		Int("max_trades", st.MaxTrades).
		Int("watchlist", len(st.Watchlist)).
		Msg("Trading session finished")
	return 0
}

func newServer(cfg *config.Config, engine *strategy.Engine, client *broker.Client, hub *events.Hub, stop <-chan struct{}, log zerolog.Logger) *http.Server {
	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	limiter := middleware.NewRateLimiter(10, 20, 10*time.Minute)
	limiter.StartCleanup(5*time.Minute, stop)

	routes.SetupRoutes(router, routes.Deps{
		Engine:   engine,
		Resolver: client,
		Hub:      hub,
		Limiter:  limiter,
		DryRun:   cfg.DryRun,
		Log:      log,
	})

	return &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// waitUntil blocks until t or ctx is done; a past t returns at once
func waitUntil(ctx context.Context, t time.Time, log zerolog.Logger) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	log.Info().Time("start_at", t).Dur("wait", d).Msg("Waiting for session start")
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func login(ctx context.Context, client *broker.Client, timeout time.Duration) error {
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Login(lctx)
}

func setupInstruments(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*gorm.DB, *instruments.Resolver, error) {
	db, err := config.InitDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	store, err := instruments.NewStore(db)
	if err != nil {
		closeDB(db, log)
		return nil, nil, err
	}
	resolver := instruments.NewResolver(store, cfg.Universe.ScripMasterURL, cfg.Broker.Exchange, log)
	if _, err := resolver.Sync(ctx); err != nil {
		closeDB(db, log)
		return nil, nil, fmt.Errorf("sync scrip master: %w", err)
	}
	if err := resolver.Load(ctx); err != nil {
		closeDB(db, log)
		return nil, nil, err
	}
	return db, resolver, nil
}

func closeDB(db *gorm.DB, log zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("Database close failed")
		return
	}
	log.Info().Msg("Database connection closed")
}

// shutdownServer stops the status server within ten seconds
func shutdownServer(server *http.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server shutdown completed")
}
