// Package main is the entry point for the PolyPulse bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"polypulse/internal/billing"
	"polypulse/internal/bot"
	"polypulse/internal/config"
	"polypulse/internal/monitor"
	"polypulse/internal/notify"
	"polypulse/internal/pkg/db"
	"polypulse/internal/pkg/dedup"
	"polypulse/internal/pkg/lock"
	"polypulse/internal/polymarket"
	"polypulse/internal/repository"
	"polypulse/internal/scheduler"
	"polypulse/internal/server"
	"polypulse/internal/service"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 15 * time.Second

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configureLogger(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Dedup store for whale transactions and known markets
	seen, known, closeDedup := newDedupStores(ctx, cfg)
	defer closeDedup()

	// Polymarket clients
	markets := polymarket.NewClient(polymarket.Options{
		BaseURL:  cfg.Polymarket.GammaURL,
		Timeout:  cfg.Polymarket.Timeout,
		CacheTTL: cfg.Polymarket.CacheTTL,
		PageSize: cfg.Polymarket.PageSize,
		MaxPages: cfg.Polymarket.MaxPages,
	})
	trades := polymarket.NewTradeFeed(cfg.Polymarket.DataURL, cfg.Polymarket.Timeout)

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	alertRepo := repository.NewAlertRepository(dbPool.Pool)
	watchlistRepo := repository.NewWatchlistRepository(dbPool.Pool)
	positionRepo := repository.NewPositionRepository(dbPool.Pool)
	whaleRepo := repository.NewWhaleRepository(dbPool.Pool)
	smartRepo := repository.NewSmartRepository(dbPool.Pool)
	briefingRepo := repository.NewBriefingRepository(dbPool.Pool)
	categoryRepo := repository.NewCategoryRepository(dbPool.Pool)
	predictionRepo := repository.NewPredictionRepository(dbPool.Pool)

	// Telegram client, shared by handlers and background notifications
	teleBot, err := bot.NewTelebot(cfg.Bot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	notifier := notify.NewSender(teleBot)

	// Initialize services
	userLock := lock.NewUserLock()
	accountService := service.NewAccountService(userRepo, cfg.Drip.TrialDays)
	marketService := service.NewMarketService(markets)
	alertService := service.NewAlertService(alertRepo, marketService, accountService, userLock, cfg.Alerts.FreeLimit)
	watchlistService := service.NewWatchlistService(watchlistRepo, marketService)
	portfolioService := service.NewPortfolioService(positionRepo, marketService)
	preferenceService := service.NewPreferenceService(whaleRepo, smartRepo, briefingRepo, categoryRepo, service.PreferenceDefaults{
		WhaleMinUSD:      cfg.Whale.MinUSD,
		BriefingHour:     cfg.Briefing.DefaultHour,
		BriefingTimezone: cfg.Briefing.DefaultTimezone,
	})
	predictionService := service.NewPredictionService(predictionRepo, marketService)
	briefingService := service.NewBriefingService(service.BriefingDeps{
		Prefs:      briefingRepo,
		Watchlist:  watchlistRepo,
		Alerts:     alertRepo,
		Whales:     whaleRepo,
		Categories: categoryRepo,
		Markets:    marketService,
		Notifier:   notifier,
		SiteURL:    cfg.Polymarket.SiteURL,
	})
	dripService := service.NewDripService(userRepo, notifier)

	var stripeAPI billing.API
	if cfg.BillingEnabled() {
		stripeAPI = billing.NewStripeClient(cfg.Stripe.SecretKey)
	} else {
		log.Warn().Msg("Stripe is not configured, billing commands are disabled")
	}
	billingService := billing.NewService(stripeAPI, userRepo, notifier, billing.Options{
		PriceID:       cfg.Stripe.PriceID,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})

	// Background monitors
	alertEngine := monitor.NewAlertEngine(alertRepo, markets, notifier, cfg.Polymarket.SiteURL, cfg.Alerts.RequestDelay)
	whaleMonitor := monitor.NewWhaleMonitor(trades, whaleRepo, seen, notifier, monitor.WhaleOptions{
		MinUSD:    cfg.Whale.MinUSD,
		FeedLimit: cfg.Whale.FeedLimit,
		SeenTTL:   cfg.Whale.SeenTTL,
		DailyCap:  cfg.Whale.DailyCap,
		SendDelay: cfg.Whale.SendDelay,
		SiteURL:   cfg.Polymarket.SiteURL,
	})
	smartMonitor := monitor.NewSmartMonitor(markets, smartRepo, known, notifier, monitor.SmartOptions{
		MarketLimit:       cfg.Smart.MarketLimit,
		SpikeMultiplier:   cfg.Smart.SpikeMultiplier,
		NoiseFloorUSD:     cfg.Smart.NoiseFloorUSD,
		MomentumDelta:     cfg.Smart.MomentumDelta,
		MomentumWindow:    cfg.Smart.MomentumWindow,
		PerTickCap:        cfg.Smart.PerTickCap,
		Cooldown:          cfg.Smart.Cooldown,
		SnapshotRetention: cfg.Smart.SnapshotRetention,
		SiteURL:           cfg.Polymarket.SiteURL,
	})

	// Scheduler
	sched := scheduler.New(ctx)
	if cfg.Jobs.Enabled {
		jobs := []struct {
			name string
			spec string
			job  scheduler.Job
		}{
			{"alert_engine", cfg.Jobs.AlertEngine, alertEngine.Tick},
			{"whale_monitor", cfg.Jobs.Whale, whaleMonitor.Tick},
			{"smart_monitor", cfg.Jobs.Smart, smartMonitor.Tick},
			{"briefing", cfg.Jobs.Briefing, briefingService.Run},
			{"drip", cfg.Jobs.Drip, dripService.Run},
			{"snapshot_prune", cfg.Jobs.Prune, smartMonitor.Prune},
			{"prediction_resolve", cfg.Jobs.Resolve, predictionService.ResolveMarkets},
		}
		for _, j := range jobs {
			if err := sched.Add(j.name, j.spec, j.job); err != nil {
				log.Fatal().Err(err).Str("job", j.name).Msg("Failed to schedule job")
			}
		}
		log.Info().Strs("jobs", sched.Jobs()).Msg("Jobs registered")
	}

	// HTTP server for health probes and the Stripe webhook
	var events server.EventHandler
	if cfg.Stripe.WebhookSecret != "" {
		events = billingService
	}
	httpServer := server.New(server.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Debug:        cfg.Log.Level == "debug",
	}, dbPool, events)

	// Create bot dependencies
	deps := &bot.Dependencies{
		Telebot:           teleBot,
		Config:            cfg,
		AccountService:    accountService,
		MarketService:     marketService,
		AlertService:      alertService,
		WatchlistService:  watchlistService,
		PortfolioService:  portfolioService,
		PreferenceService: preferenceService,
		PredictionService: predictionService,
		BillingService:    billingService,
		Whales:            whaleRepo,
		Tags:              markets,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
			sigChan <- syscall.SIGTERM
		}
	}()

	sched.Start()

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Bot stopped gracefully")
}

// configureLogger applies the level and switches to JSON output unless the
// console format is configured.
func configureLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// newDedupStores returns the whale seen-set and the known market set. Redis
// is used when configured and reachable, otherwise both live in memory.
func newDedupStores(ctx context.Context, cfg *config.Config) (seen, known dedup.Store, closeFn func()) {
	if cfg.Redis.Addr != "" {
		store := dedup.NewRedisStore(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, "polypulse:")
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := store.Ping(pingCtx)
		if err == nil {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis dedup store")
			return store, store, func() { _ = store.Close() }
		}
		log.Warn().Err(err).Msg("Redis unreachable, falling back to in-memory dedup")
		_ = store.Close()
	}
	return dedup.NewMemoryStore(cfg.Whale.SeenCap), dedup.NewMemoryStore(0), func() {}
}
