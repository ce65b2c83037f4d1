package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"polypulse/internal/format"
	"polypulse/internal/model"
	"polypulse/internal/notify"
	"polypulse/internal/pkg/dedup"
	"polypulse/internal/polymarket"
)

// WhaleStore is the whale persistence the monitor needs.
type WhaleStore interface {
	ListSubscribers(ctx context.Context, amountUSD float64, now time.Time) ([]*model.WhalePreference, error)
	RecordSent(ctx context.Context, userID int64, now time.Time) error
	InsertEvent(ctx context.Context, e *model.WhaleEvent) (*model.WhaleEvent, error)
	MarketStats(ctx context.Context, marketID string, since time.Time) (*model.MarketWhaleStats, error)
	LastEventForMarket(ctx context.Context, marketID string) (*model.WhaleEvent, error)
}

// WhaleOptions tune the whale monitor.
type WhaleOptions struct {
	MinUSD    float64
	FeedLimit int
	SeenTTL   time.Duration
	DailyCap  int
	SendDelay time.Duration
	SiteURL   string
}

// WhaleMonitor turns large trades into whale events and notifications.
type WhaleMonitor struct {
	trades   TradeSource
	store    WhaleStore
	seen     dedup.Store
	notifier notify.Notifier
	opts     WhaleOptions
	now      func() time.Time
}

// NewWhaleMonitor creates a WhaleMonitor.
func NewWhaleMonitor(trades TradeSource, store WhaleStore, seen dedup.Store, notifier notify.Notifier, opts WhaleOptions) *WhaleMonitor {
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = 100
	}
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = 48 * time.Hour
	}
	return &WhaleMonitor{
		trades:   trades,
		store:    store,
		seen:     seen,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// ClassifySide maps a trade's outcome token and direction to the side the
// trader is effectively backing.
func ClassifySide(outcome, side string) string {
	isNo := strings.EqualFold(strings.TrimSpace(outcome), "no")
	isSell := strings.EqualFold(strings.TrimSpace(side), "sell")
	if isNo != isSell {
		return model.SideNo
	}
	return model.SideYes
}

// ImpliedYes returns the YES probability implied by a fill price.
func ImpliedYes(outcome string, price float64) float64 {
	if strings.EqualFold(strings.TrimSpace(outcome), "no") {
		return 1 - price
	}
	return price
}

func seenKey(t polymarket.Trade) string {
	if t.TxHash != "" {
		return "whale:tx:" + t.TxHash
	}
	return fmt.Sprintf("whale:tx:%s:%s:%d", t.Wallet, t.Asset, t.Timestamp.Unix())
}

// Tick processes the latest trades. Each trade is handled independently;
// failures are logged and the trade is skipped.
func (w *WhaleMonitor) Tick(ctx context.Context) error {
	trades, err := w.trades.Latest(ctx, w.opts.FeedLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch trades: %w", err)
	}

	minUSD := decimal.NewFromFloat(w.opts.MinUSD)
	detected := 0
	for _, t := range trades {
		usd := t.USDValue()
		if usd.LessThan(minUSD) {
			continue
		}

		fresh, err := w.seen.MarkIfNew(ctx, seenKey(t), w.opts.SeenTTL)
		if err != nil {
			log.Warn().Err(err).Str("tx_hash", t.TxHash).Msg("Dedup store unavailable, skipping trade")
			continue
		}
		if !fresh {
			continue
		}

		if err := w.handle(ctx, t, usd.InexactFloat64()); err != nil {
			log.Warn().Err(err).Str("tx_hash", t.TxHash).Str("market_id", t.ConditionID).Msg("Failed to process whale trade")
			continue
		}
		detected++
	}

	log.Debug().Int("trades", len(trades)).Int("whales", detected).Msg("Whale monitor tick complete")
	return nil
}

func (w *WhaleMonitor) handle(ctx context.Context, t polymarket.Trade, usd float64) error {
	now := w.now()
	event := &model.WhaleEvent{
		MarketID:    t.ConditionID,
		MarketTitle: t.Title,
		MarketSlug:  t.Slug,
		AmountUSD:   usd,
		Side:        ClassifySide(t.Outcome, t.Side),
		OddsAfter:   ImpliedYes(t.Outcome, t.Price.InexactFloat64()),
		Wallet:      t.Wallet,
		TxHash:      t.TxHash,
		DetectedAt:  now,
	}

	prev, err := w.store.LastEventForMarket(ctx, event.MarketID)
	if err != nil {
		return err
	}
	if prev != nil {
		before := prev.OddsAfter
		event.OddsBefore = &before
	}

	event, err = w.store.InsertEvent(ctx, event)
	if err != nil {
		return err
	}

	stats, err := w.store.MarketStats(ctx, event.MarketID, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	subs, err := w.store.ListSubscribers(ctx, usd, now)
	if err != nil {
		return err
	}

	text := WhaleMessage(event, stats, t.EventSlug, w.opts.SiteURL)
	for i, sub := range subs {
		if w.opts.DailyCap > 0 && sub.SentToday(now) >= w.opts.DailyCap {
			continue
		}
		if i > 0 {
			if err := pause(ctx, w.opts.SendDelay); err != nil {
				return err
			}
		}
		if err := w.notifier.Send(ctx, sub.ChatID, text); err != nil {
			log.Warn().Err(err).Int64("chat_id", sub.ChatID).Str("tx_hash", t.TxHash).Msg("Failed to send whale alert")
			continue
		}
		if err := w.store.RecordSent(ctx, sub.UserID, now); err != nil {
			log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("Failed to record whale send")
		}
	}

	log.Info().
		Str("market_id", event.MarketID).
		Str("tx_hash", event.TxHash).
		Float64("usd", usd).
		Str("side", event.Side).
		Int("subscribers", len(subs)).
		Msg("Whale detected")
	return nil
}

// WhaleMessage renders a whale event with its market's 24h flow.
func WhaleMessage(e *model.WhaleEvent, stats *model.MarketWhaleStats, eventSlug, siteURL string) string {
	tier := format.WhaleTier(e.AmountUSD)

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s alert*\n\n", tier.Emoji, tier.Label)
	fmt.Fprintf(&b, "%s\n", format.EscapeMarkdown(format.Truncate(e.MarketTitle, 120)))
	fmt.Fprintf(&b, "*%s* on *%s*\n", format.USD(e.AmountUSD), e.Side)
	if e.OddsBefore != nil {
		fmt.Fprintf(&b, "Odds: %s → %s %s\n",
			format.Percent(*e.OddsBefore), format.Percent(e.OddsAfter), format.MomentumEmoji(e.OddsAfter-*e.OddsBefore))
	} else {
		fmt.Fprintf(&b, "Odds: %s\n", format.Percent(e.OddsAfter))
	}
	if stats != nil && stats.Count > 0 {
		fmt.Fprintf(&b, "24h whale flow: %d trades, %s (YES %s / NO %s)\n",
			stats.Count, format.USD(stats.TotalUSD), format.USD(stats.YesUSD), format.USD(stats.NoUSD))
	}
	fmt.Fprintf(&b, "\n%s", format.MarketLink(siteURL, eventSlug, e.MarketSlug))
	return b.String()
}
