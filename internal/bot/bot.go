// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"polypulse/internal/billing"
	"polypulse/internal/config"
	"polypulse/internal/handler"
	"polypulse/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot            *tele.Bot
	cfg            *config.Config
	accountService *service.AccountService

	// Handlers
	accountHandler    *handler.AccountHandler
	marketHandler     *handler.MarketHandler
	alertHandler      *handler.AlertHandler
	portfolioHandler  *handler.PortfolioHandler
	preferenceHandler *handler.PreferenceHandler
	predictionHandler *handler.PredictionHandler
	billingHandler    *handler.BillingHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Telebot           *tele.Bot
	Config            *config.Config
	AccountService    *service.AccountService
	MarketService     *service.MarketService
	AlertService      *service.AlertService
	WatchlistService  *service.WatchlistService
	PortfolioService  *service.PortfolioService
	PreferenceService *service.PreferenceService
	PredictionService *service.PredictionService
	BillingService    *billing.Service
	Whales            service.WhaleFeed
	Tags              handler.TagSource
}

// NewTelebot creates the telebot instance. Background notifiers wrap it
// before New registers the handlers.
func NewTelebot(cfg config.BotConfig) (*tele.Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			ev := log.Error().Err(err)
			if c != nil && c.Sender() != nil {
				ev = ev.Int64("user_id", c.Sender().ID)
			}
			ev.Msg("Unhandled bot error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New registers middleware and handlers on deps.Telebot.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Telebot == nil {
		return nil, fmt.Errorf("telebot instance is required")
	}
	teleBot := deps.Telebot

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountService: deps.AccountService,
	}

	// Initialize handlers
	b.accountHandler = handler.NewAccountHandler(deps.AccountService, deps.Config.Alerts.FreeLimit)
	b.marketHandler = handler.NewMarketHandler(deps.MarketService, deps.Config.Polymarket.SiteURL)
	b.alertHandler = handler.NewAlertHandler(deps.AlertService, deps.AccountService)
	b.portfolioHandler = handler.NewPortfolioHandler(deps.WatchlistService, deps.PortfolioService)
	b.preferenceHandler = handler.NewPreferenceHandler(deps.PreferenceService, deps.Whales, deps.Tags)
	b.predictionHandler = handler.NewPredictionHandler(deps.PredictionService)
	b.billingHandler = handler.NewBillingHandler(deps.BillingService, deps.AccountService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(UserMiddleware(b.accountService))
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Free commands
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/help", b.accountHandler.HandleHelp)
	b.bot.Handle("/price", b.marketHandler.HandlePrice)
	b.bot.Handle("/trending", b.marketHandler.HandleTrending)
	b.bot.Handle("/alert", b.alertHandler.HandleAlert)
	b.bot.Handle("/alerts", b.alertHandler.HandleAlerts)
	b.bot.Handle("/cancelalert", b.alertHandler.HandleCancelAlert)
	b.bot.Handle("/leaderboard", b.predictionHandler.HandleLeaderboard)

	// Billing
	b.bot.Handle("/upgrade", b.billingHandler.HandleUpgrade)
	b.bot.Handle("/subscription", b.billingHandler.HandleSubscription)
	b.bot.Handle("/cancelsub", b.billingHandler.HandleCancelSub)

	// Premium commands
	premium := b.bot.Group()
	premium.Use(PremiumMiddleware(b.accountService.IsPremium))
	premium.Handle("/watch", b.portfolioHandler.HandleWatch)
	premium.Handle("/unwatch", b.portfolioHandler.HandleUnwatch)
	premium.Handle("/watchlist", b.portfolioHandler.HandleWatchlist)
	premium.Handle("/buy", b.portfolioHandler.HandleBuy)
	premium.Handle("/sell", b.portfolioHandler.HandleSell)
	premium.Handle("/portfolio", b.portfolioHandler.HandlePortfolio)
	premium.Handle("/whales", b.preferenceHandler.HandleWhales)
	premium.Handle("/briefing", b.preferenceHandler.HandleBriefing)
	premium.Handle("/smart", b.preferenceHandler.HandleSmart)
	premium.Handle("/categories", b.preferenceHandler.HandleCategories)
	premium.Handle("/predict", b.predictionHandler.HandlePredict)
	premium.Handle("/predictions", b.predictionHandler.HandlePredictions)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
