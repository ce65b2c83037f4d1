package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"polypulse/internal/format"
	"polypulse/internal/model"
	"polypulse/internal/notify"
	"polypulse/internal/polymarket"
)

// AlertStore is the alert persistence the engine needs.
type AlertStore interface {
	ListActive(ctx context.Context) ([]*model.Alert, error)
	Deactivate(ctx context.Context, id int64) error
}

// AlertEngine evaluates active price alerts against live prices.
type AlertEngine struct {
	alerts   AlertStore
	markets  MarketGetter
	notifier notify.Notifier
	siteURL  string
	delay    time.Duration
}

// NewAlertEngine creates an AlertEngine. delay is slept between market fetches.
func NewAlertEngine(alerts AlertStore, markets MarketGetter, notifier notify.Notifier, siteURL string, delay time.Duration) *AlertEngine {
	return &AlertEngine{
		alerts:   alerts,
		markets:  markets,
		notifier: notifier,
		siteURL:  siteURL,
		delay:    delay,
	}
}

// Tick loads every active alert, fetches each referenced market once and
// fires the alerts whose condition holds. A market that fails to load is
// skipped until the next tick.
func (e *AlertEngine) Tick(ctx context.Context) error {
	alerts, err := e.alerts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	var order []string
	byMarket := make(map[string][]*model.Alert)
	for _, a := range alerts {
		if _, ok := byMarket[a.MarketID]; !ok {
			order = append(order, a.MarketID)
		}
		byMarket[a.MarketID] = append(byMarket[a.MarketID], a)
	}

	fired := 0
	for i, marketID := range order {
		if i > 0 {
			if err := pause(ctx, e.delay); err != nil {
				return err
			}
		}

		market, err := e.markets.GetMarket(ctx, marketID)
		if err != nil {
			log.Warn().Err(err).Str("market_id", marketID).Msg("Failed to fetch market for alerts")
			continue
		}
		price, ok := market.YesPrice()
		if !ok {
			log.Warn().Str("market_id", marketID).Msg("Market has no price")
			continue
		}

		for _, a := range byMarket[marketID] {
			if !a.Triggered(price) {
				continue
			}
			e.fire(ctx, a, market, price)
			fired++
		}
	}

	log.Debug().Int("alerts", len(alerts)).Int("markets", len(order)).Int("fired", fired).Msg("Alert engine tick complete")
	return nil
}

// fire notifies the owner and deactivates the alert. The alert is
// deactivated even when delivery fails so a blocked chat cannot re-fire
// every tick.
func (e *AlertEngine) fire(ctx context.Context, a *model.Alert, market *polymarket.Market, price float64) {
	if err := e.notifier.Send(ctx, a.ChatID, AlertMessage(a, market, price, e.siteURL)); err != nil {
		log.Warn().Err(err).Int64("alert_id", a.ID).Int64("chat_id", a.ChatID).Msg("Failed to send price alert")
	}
	if err := e.alerts.Deactivate(ctx, a.ID); err != nil {
		log.Warn().Err(err).Int64("alert_id", a.ID).Msg("Failed to deactivate alert")
		return
	}
	log.Info().
		Int64("alert_id", a.ID).
		Str("market_id", a.MarketID).
		Float64("price", price).
		Float64("threshold", a.Threshold).
		Str("direction", a.Direction).
		Msg("Price alert triggered")
}

// AlertMessage renders a triggered price alert.
func AlertMessage(a *model.Alert, market *polymarket.Market, price float64, siteURL string) string {
	arrow := "⬆️"
	if a.Direction == model.DirectionBelow {
		arrow = "⬇️"
	}
	name := a.MarketName
	if name == "" {
		name = market.Question
	}
	return fmt.Sprintf("🔔 *Price alert*\n\n%s\n%s YES is now *%s* (target %s %s)\n\n%s",
		format.EscapeMarkdown(name),
		arrow,
		format.Percent(price),
		a.Direction,
		format.Percent(a.Threshold),
		format.MarketLink(siteURL, market.EventSlug, market.Slug),
	)
}
