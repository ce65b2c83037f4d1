package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"polypulse/internal/format"
	"polypulse/internal/model"
	"polypulse/internal/notify"
	"polypulse/internal/pkg/dedup"
	"polypulse/internal/polymarket"
)

// SmartStore is the smart alert persistence the monitor needs.
type SmartStore interface {
	ListSubscribers(ctx context.Context, alertType string, now time.Time) ([]*model.SmartAlertPreference, error)
	RecordHistory(ctx context.Context, h *model.SmartAlertHistory) error
	LastFired(ctx context.Context, userID int64, alertType, marketID string) (*time.Time, error)
	InsertSnapshot(ctx context.Context, s *model.VolumeSnapshot) error
	AverageHourlyVolume(ctx context.Context, marketID string, since time.Time) (float64, int, error)
	EarliestSnapshot(ctx context.Context, marketID string, since time.Time) (*model.VolumeSnapshot, error)
	RecentPrices(ctx context.Context, marketID string, since time.Time, limit int) ([]float64, error)
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// SmartOptions tune the smart alert monitor.
type SmartOptions struct {
	MarketLimit       int
	SpikeMultiplier   float64
	NoiseFloorUSD     float64
	MomentumDelta     float64
	MomentumWindow    time.Duration
	PerTickCap        int
	Cooldown          time.Duration
	SnapshotRetention time.Duration
	KnownTTL          time.Duration
	SparkPoints       int
	SiteURL           string
}

func (o *SmartOptions) applyDefaults() {
	if o.MarketLimit <= 0 {
		o.MarketLimit = 50
	}
	if o.SpikeMultiplier <= 0 {
		o.SpikeMultiplier = 3
	}
	if o.MomentumDelta <= 0 {
		o.MomentumDelta = 0.10
	}
	if o.MomentumWindow <= 0 {
		o.MomentumWindow = 60 * time.Minute
	}
	if o.PerTickCap <= 0 {
		o.PerTickCap = 5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 6 * time.Hour
	}
	if o.SnapshotRetention <= 0 {
		o.SnapshotRetention = 7 * 24 * time.Hour
	}
	if o.KnownTTL <= 0 {
		o.KnownTTL = 30 * 24 * time.Hour
	}
	if o.SparkPoints <= 0 {
		o.SparkPoints = 12
	}
}

// signal is one market that tripped a check.
type signal struct {
	market   polymarket.Market
	category string
	text     string
	detail   map[string]any
}

// SmartMonitor runs the volume spike, momentum and new market checks over
// one batch of trending markets per tick.
type SmartMonitor struct {
	markets  TrendingSource
	store    SmartStore
	known    dedup.Store
	notifier notify.Notifier
	opts     SmartOptions
	now      func() time.Time

	// baselined is false until the first tick has recorded the market set.
	baselined bool
}

// NewSmartMonitor creates a SmartMonitor. known records market ids already
// seen by the new market check.
func NewSmartMonitor(markets TrendingSource, store SmartStore, known dedup.Store, notifier notify.Notifier, opts SmartOptions) *SmartMonitor {
	opts.applyDefaults()
	return &SmartMonitor{
		markets:  markets,
		store:    store,
		known:    known,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// IsVolumeSpike reports whether the estimated hourly volume is at least
// multiplier times the stored average, with the average above the floor.
func IsVolumeSpike(estimatedHourly, averageHourly, multiplier, floor float64) bool {
	if averageHourly <= 0 || averageHourly < floor {
		return false
	}
	return estimatedHourly/averageHourly >= multiplier
}

// Tick runs all three checks, then stores a snapshot of every market.
func (s *SmartMonitor) Tick(ctx context.Context) error {
	markets, err := s.markets.ListTrending(ctx, s.opts.MarketLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch trending markets: %w", err)
	}
	now := s.now()

	spikes := s.volumeSpikes(ctx, markets, now)
	s.dispatch(ctx, model.SmartVolumeSpike, spikes, now)

	moves := s.momentum(ctx, markets, now)
	s.dispatch(ctx, model.SmartMomentum, moves, now)

	fresh := s.newMarkets(ctx, markets)
	s.dispatch(ctx, model.SmartNewMarket, fresh, now)

	for _, m := range markets {
		snap := &model.VolumeSnapshot{MarketID: m.ID, Volume: m.Volume24h, CapturedAt: now}
		if price, ok := m.YesPrice(); ok {
			snap.Price = &price
		}
		if err := s.store.InsertSnapshot(ctx, snap); err != nil {
			log.Warn().Err(err).Str("market_id", m.ID).Msg("Failed to store volume snapshot")
		}
	}

	log.Debug().
		Int("markets", len(markets)).
		Int("spikes", len(spikes)).
		Int("momentum", len(moves)).
		Int("new", len(fresh)).
		Msg("Smart monitor tick complete")
	return nil
}

// Prune deletes snapshots older than the retention window.
func (s *SmartMonitor) Prune(ctx context.Context) error {
	n, err := s.store.PruneSnapshots(ctx, s.now().Add(-s.opts.SnapshotRetention))
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", n).Msg("Volume snapshots pruned")
	return nil
}

func (s *SmartMonitor) volumeSpikes(ctx context.Context, markets []polymarket.Market, now time.Time) []signal {
	var out []signal
	for _, m := range markets {
		avg, n, err := s.store.AverageHourlyVolume(ctx, m.ID, now.Add(-24*time.Hour))
		if err != nil {
			log.Warn().Err(err).Str("market_id", m.ID).Msg("Failed to load volume average")
			continue
		}
		estimated := m.Volume24h / 24
		if n == 0 || !IsVolumeSpike(estimated, avg, s.opts.SpikeMultiplier, s.opts.NoiseFloorUSD) {
			continue
		}
		ratio := estimated / avg
		out = append(out, signal{
			market: m,
			text: fmt.Sprintf("📊 *Volume spike* (%.1fx)\n\n%s\nEst. hourly %s vs avg %s\n\n%s",
				ratio,
				format.EscapeMarkdown(format.Truncate(m.Question, 120)),
				format.USD(estimated), format.USD(avg),
				format.MarketLink(s.opts.SiteURL, m.EventSlug, m.Slug)),
			detail: map[string]any{"ratio": ratio, "estimated_hourly": estimated, "average_hourly": avg},
		})
	}
	return out
}

func (s *SmartMonitor) momentum(ctx context.Context, markets []polymarket.Market, now time.Time) []signal {
	var out []signal
	for _, m := range markets {
		price, ok := m.YesPrice()
		if !ok {
			continue
		}
		earliest, err := s.store.EarliestSnapshot(ctx, m.ID, now.Add(-s.opts.MomentumWindow))
		if err != nil {
			log.Warn().Err(err).Str("market_id", m.ID).Msg("Failed to load snapshot")
			continue
		}
		if earliest == nil || earliest.Price == nil {
			continue
		}
		from := *earliest.Price
		delta := price - from
		if math.Abs(delta) < s.opts.MomentumDelta {
			continue
		}
		mins := int(now.Sub(earliest.CapturedAt).Minutes())
		out = append(out, signal{
			market: m,
			text: fmt.Sprintf("%s *Momentum* %s in %dm\n\n%s\n%s → %s  %s\n\n%s",
				format.MomentumEmoji(delta), format.Change(delta), mins,
				format.EscapeMarkdown(format.Truncate(m.Question, 120)),
				format.PercentPrecise(from), format.PercentPrecise(price),
				s.sparkline(ctx, m.ID, price, now),
				format.MarketLink(s.opts.SiteURL, m.EventSlug, m.Slug)),
			detail: map[string]any{"from": from, "to": price, "delta": delta},
		})
	}
	return out
}

// sparkline draws the stored prices of the momentum window followed by the
// current price.
func (s *SmartMonitor) sparkline(ctx context.Context, marketID string, current float64, now time.Time) string {
	prices, err := s.store.RecentPrices(ctx, marketID, now.Add(-s.opts.MomentumWindow), s.opts.SparkPoints-1)
	if err != nil {
		log.Warn().Err(err).Str("market_id", marketID).Msg("Failed to load recent prices")
		return ""
	}
	return format.Sparkline(append(prices, current))
}

// newMarkets records every market id and returns the ones not seen before.
// The first tick only records.
func (s *SmartMonitor) newMarkets(ctx context.Context, markets []polymarket.Market) []signal {
	var out []signal
	for _, m := range markets {
		fresh, err := s.known.MarkIfNew(ctx, "market:known:"+m.ID, s.opts.KnownTTL)
		if err != nil {
			log.Warn().Err(err).Str("market_id", m.ID).Msg("Failed to record market id")
			continue
		}
		if !fresh || !s.baselined {
			continue
		}
		category := Categorize(m.Question)
		price, _ := m.YesPrice()
		out = append(out, signal{
			market:   m,
			category: category,
			text: fmt.Sprintf("🆕 *New market* · %s\n\n%s\nYES %s · 24h vol %s\n\n%s",
				category,
				format.EscapeMarkdown(format.Truncate(m.Question, 120)),
				format.Percent(price), format.USD(m.Volume24h),
				format.MarketLink(s.opts.SiteURL, m.EventSlug, m.Slug)),
			detail: map[string]any{"category": category},
		})
	}
	if !s.baselined {
		s.baselined = true
		log.Info().Int("markets", len(markets)).Msg("New market baseline recorded")
	}
	return out
}

// dispatch sends signals to subscribers of alertType, honouring the per
// tick cap and the per (user, type, market) cooldown.
func (s *SmartMonitor) dispatch(ctx context.Context, alertType string, signals []signal, now time.Time) {
	if len(signals) == 0 {
		return
	}
	subs, err := s.store.ListSubscribers(ctx, alertType, now)
	if err != nil {
		log.Warn().Err(err).Str("alert_type", alertType).Msg("Failed to list smart subscribers")
		return
	}

	sent := 0
	for _, sig := range signals {
		for _, sub := range subs {
			if sent >= s.opts.PerTickCap {
				log.Debug().Str("alert_type", alertType).Msg("Smart alert cap reached")
				return
			}
			if alertType == model.SmartNewMarket && !wantsCategory(sub, sig.category) {
				continue
			}

			last, err := s.store.LastFired(ctx, sub.UserID, alertType, sig.market.ID)
			if err != nil {
				log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("Failed to check smart cooldown")
				continue
			}
			if last != nil && now.Sub(*last) < s.opts.Cooldown {
				continue
			}

			if err := s.notifier.Send(ctx, sub.ChatID, sig.text); err != nil {
				log.Warn().Err(err).Int64("chat_id", sub.ChatID).Str("market_id", sig.market.ID).Msg("Failed to send smart alert")
				continue
			}
			sent++

			detail, _ := json.Marshal(sig.detail)
			h := &model.SmartAlertHistory{UserID: sub.UserID, AlertType: alertType, MarketID: sig.market.ID, FiredAt: now, Detail: detail}
			if err := s.store.RecordHistory(ctx, h); err != nil {
				log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("Failed to record smart alert")
			}
		}
	}
}

func wantsCategory(sub *model.SmartAlertPreference, category string) bool {
	cats := sub.DecodeParams().Categories
	if len(cats) == 0 {
		return true
	}
	for _, c := range cats {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}
