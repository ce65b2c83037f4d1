package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"polypulse/internal/format"
	"polypulse/internal/model"
	"polypulse/internal/monitor"
	"polypulse/internal/notify"
	"polypulse/internal/polymarket"
)

// BriefingStore is the persistence the briefing job reads and writes.
type BriefingStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*model.BriefingPreference, error)
	MarkSent(ctx context.Context, userID int64, at time.Time) error
}

// TriggeredAlerts lists alerts fired recently.
type TriggeredAlerts interface {
	ListTriggeredSince(ctx context.Context, userID int64, since time.Time) ([]*model.Alert, error)
}

// WhaleFeed lists recent whale events.
type WhaleFeed interface {
	Recent(ctx context.Context, since time.Time, limit int) ([]*model.WhaleEvent, error)
}

// Briefing section sizes.
const (
	briefingMovers     = 5
	briefingWhales     = 3
	briefingMoverScan  = 50
	briefingNameLength = 60
)

// BriefingService composes and sends the daily briefing.
type BriefingService struct {
	prefs      BriefingStore
	watchlist  WatchlistRepo
	alerts     TriggeredAlerts
	whales     WhaleFeed
	categories CategoryRepo
	markets    *MarketService
	notifier   notify.Notifier
	siteURL    string
	now        func() time.Time
}

// BriefingDeps groups the BriefingService collaborators.
type BriefingDeps struct {
	Prefs      BriefingStore
	Watchlist  WatchlistRepo
	Alerts     TriggeredAlerts
	Whales     WhaleFeed
	Categories CategoryRepo
	Markets    *MarketService
	Notifier   notify.Notifier
	SiteURL    string
}

// NewBriefingService creates a new BriefingService instance.
func NewBriefingService(d BriefingDeps) *BriefingService {
	return &BriefingService{
		prefs:      d.Prefs,
		watchlist:  d.Watchlist,
		alerts:     d.Alerts,
		whales:     d.Whales,
		categories: d.Categories,
		markets:    d.Markets,
		notifier:   d.Notifier,
		siteURL:    d.SiteURL,
		now:        time.Now,
	}
}

// Run sends the briefing to every user whose local send hour is now.
// Per-user failures are logged and do not stop the run.
func (s *BriefingService) Run(ctx context.Context) error {
	now := s.now()
	due, err := s.prefs.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due briefings: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	movers, err := s.markets.Trending(ctx, briefingMoverScan)
	if err != nil {
		log.Warn().Err(err).Msg("Briefing movers unavailable")
	}
	whales, err := s.whales.Recent(ctx, now.Add(-24*time.Hour), briefingWhales)
	if err != nil {
		log.Warn().Err(err).Msg("Briefing whale events unavailable")
	}

	sent := 0
	for _, p := range due {
		text, err := s.Compose(ctx, p, movers, whales)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", p.UserID).Msg("Failed to compose briefing")
			continue
		}
		if err := s.notifier.Send(ctx, p.ChatID, text); err != nil {
			log.Warn().Err(err).Int64("user_id", p.UserID).Msg("Failed to send briefing")
			continue
		}
		if err := s.prefs.MarkSent(ctx, p.UserID, now); err != nil {
			log.Warn().Err(err).Int64("user_id", p.UserID).Msg("Failed to mark briefing sent")
		}
		sent++
	}

	log.Info().Int("due", len(due)).Int("sent", sent).Msg("Briefings sent")
	return nil
}

// Compose renders one user's briefing from the shared movers and whale
// events plus the user's own watchlist and triggered alerts.
func (s *BriefingService) Compose(ctx context.Context, p *model.BriefingPreference, movers []polymarket.Market, whales []*model.WhaleEvent) (string, error) {
	now := s.now()
	items, err := s.watchlist.ListByUser(ctx, p.UserID)
	if err != nil {
		return "", err
	}
	triggered, err := s.alerts.ListTriggeredSince(ctx, p.UserID, now.Add(-24*time.Hour))
	if err != nil {
		return "", err
	}
	filter := p.CategoryFilter
	if len(filter) == 0 {
		if filter, err = s.categories.ListByUser(ctx, p.UserID); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString("☀️ *Your PolyPulse briefing*\n")

	b.WriteString("\n*Watchlist*\n")
	if len(items) == 0 {
		b.WriteString("Nothing watched yet. Use /watch <market>.\n")
	}
	for _, it := range items {
		m, err := s.markets.Get(ctx, it.MarketID)
		name := format.EscapeMarkdown(format.Truncate(it.MarketName, briefingNameLength))
		if err != nil {
			fmt.Fprintf(&b, "• %s: %s\n", name, format.NA)
			continue
		}
		price, ok := m.YesPrice()
		if !ok {
			fmt.Fprintf(&b, "• %s: %s\n", name, format.NA)
			continue
		}
		fmt.Fprintf(&b, "• %s: %s (%s 24h)\n", name, format.PercentPrecise(price), signedPercent(m.DayChange))
	}

	if len(triggered) > 0 {
		b.WriteString("\n*Triggered alerts*\n")
		for _, a := range triggered {
			fmt.Fprintf(&b, "• %s crossed %s %s\n",
				format.EscapeMarkdown(format.Truncate(a.MarketName, briefingNameLength)), a.Direction, format.Percent(a.Threshold))
		}
	}

	top := TopMovers(movers, filter, briefingMovers)
	if len(top) > 0 {
		b.WriteString("\n*Top movers*\n")
		for _, m := range top {
			price, _ := m.YesPrice()
			fmt.Fprintf(&b, "• %s %s: %s (%s)\n",
				format.MomentumEmoji(m.DayChange),
				format.EscapeMarkdown(format.Truncate(m.Question, briefingNameLength)),
				format.Percent(price), format.Change(m.DayChange))
		}
	}

	if len(whales) > 0 {
		b.WriteString("\n*Whale activity*\n")
		for _, e := range whales {
			tier := format.WhaleTier(e.AmountUSD)
			fmt.Fprintf(&b, "• %s %s %s on %s\n",
				tier.Emoji, format.USD(e.AmountUSD), e.Side,
				format.EscapeMarkdown(format.Truncate(e.MarketTitle, briefingNameLength)))
		}
	}

	fmt.Fprintf(&b, "\n%s", format.EscapeMarkdown(strings.TrimRight(s.siteURL, "/")))
	return b.String(), nil
}

// TopMovers returns up to n markets by absolute 24h change, restricted to
// the given categories when any are set.
func TopMovers(markets []polymarket.Market, categories []string, n int) []polymarket.Market {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[strings.ToLower(c)] = true
	}

	var out []polymarket.Market
	for _, m := range markets {
		if m.DayChange == 0 {
			continue
		}
		if len(allowed) > 0 && !allowed[monitor.Categorize(m.Question)] {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].DayChange) > math.Abs(out[j].DayChange)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func signedPercent(delta float64) string {
	return fmt.Sprintf("%+.1f%%", delta*100)
}
