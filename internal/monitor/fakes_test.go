package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"polypulse/internal/model"
	"polypulse/internal/polymarket"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[int64]bool
}

func (n *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[chatID] {
		return errors.New("forbidden: bot was blocked by the user")
	}
	n.sent = append(n.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeMarkets struct {
	markets  map[string]*polymarket.Market
	trending []polymarket.Market
	calls    map[string]int
	fail     map[string]bool
}

func newFakeMarkets() *fakeMarkets {
	return &fakeMarkets{markets: map[string]*polymarket.Market{}, calls: map[string]int{}, fail: map[string]bool{}}
}

func (f *fakeMarkets) GetMarket(_ context.Context, id string) (*polymarket.Market, error) {
	f.calls[id]++
	if f.fail[id] {
		return nil, errors.New("gamma error: status 502")
	}
	m, ok := f.markets[id]
	if !ok {
		return nil, polymarket.ErrMarketNotFound
	}
	return m, nil
}

func (f *fakeMarkets) ListTrending(_ context.Context, limit int) ([]polymarket.Market, error) {
	if len(f.trending) > limit {
		return f.trending[:limit], nil
	}
	return f.trending, nil
}

func market(id string, yes float64) *polymarket.Market {
	return &polymarket.Market{ID: id, Question: "Market " + id, Slug: "market-" + id, OutcomePrices: []float64{yes, 1 - yes}}
}

type fakeAlertStore struct {
	alerts      []*model.Alert
	deactivated []int64
}

func (s *fakeAlertStore) ListActive(context.Context) ([]*model.Alert, error) {
	var out []*model.Alert
	for _, a := range s.alerts {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAlertStore) Deactivate(_ context.Context, id int64) error {
	for _, a := range s.alerts {
		if a.ID == id {
			a.Active = false
			s.deactivated = append(s.deactivated, id)
			return nil
		}
	}
	return errors.New("alert not found")
}

type fakeTrades struct {
	trades []polymarket.Trade
}

func (f *fakeTrades) Latest(context.Context, int) ([]polymarket.Trade, error) {
	return f.trades, nil
}

type fakeWhaleStore struct {
	events []*model.WhaleEvent
	subs   []*model.WhalePreference
	sent   map[int64]int
}

func newFakeWhaleStore(subs ...*model.WhalePreference) *fakeWhaleStore {
	return &fakeWhaleStore{subs: subs, sent: map[int64]int{}}
}

func (s *fakeWhaleStore) ListSubscribers(_ context.Context, amountUSD float64, _ time.Time) ([]*model.WhalePreference, error) {
	var out []*model.WhalePreference
	for _, p := range s.subs {
		if p.Enabled && p.MinUSD <= amountUSD {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeWhaleStore) RecordSent(_ context.Context, userID int64, now time.Time) error {
	s.sent[userID]++
	for _, p := range s.subs {
		if p.UserID == userID {
			p.DailySent = p.SentToday(now) + 1
			p.LastSentAt = &now
		}
	}
	return nil
}

func (s *fakeWhaleStore) InsertEvent(_ context.Context, e *model.WhaleEvent) (*model.WhaleEvent, error) {
	out := *e
	out.ID = int64(len(s.events) + 1)
	s.events = append(s.events, &out)
	return &out, nil
}

func (s *fakeWhaleStore) MarketStats(_ context.Context, marketID string, _ time.Time) (*model.MarketWhaleStats, error) {
	st := &model.MarketWhaleStats{MarketID: marketID}
	for _, e := range s.events {
		if e.MarketID != marketID {
			continue
		}
		st.Count++
		st.TotalUSD += e.AmountUSD
		if e.Side == model.SideYes {
			st.YesUSD += e.AmountUSD
		} else {
			st.NoUSD += e.AmountUSD
		}
	}
	return st, nil
}

func (s *fakeWhaleStore) LastEventForMarket(_ context.Context, marketID string) (*model.WhaleEvent, error) {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].MarketID == marketID {
			return s.events[i], nil
		}
	}
	return nil, nil
}

type historyKey struct {
	userID    int64
	alertType string
	marketID  string
}

type fakeSmartStore struct {
	subs      map[string][]*model.SmartAlertPreference
	history   map[historyKey]time.Time
	snapshots []*model.VolumeSnapshot
	pruned    time.Time
}

func newFakeSmartStore() *fakeSmartStore {
	return &fakeSmartStore{subs: map[string][]*model.SmartAlertPreference{}, history: map[historyKey]time.Time{}}
}

func (s *fakeSmartStore) ListSubscribers(_ context.Context, alertType string, _ time.Time) ([]*model.SmartAlertPreference, error) {
	return s.subs[alertType], nil
}

func (s *fakeSmartStore) RecordHistory(_ context.Context, h *model.SmartAlertHistory) error {
	s.history[historyKey{h.UserID, h.AlertType, h.MarketID}] = h.FiredAt
	return nil
}

func (s *fakeSmartStore) LastFired(_ context.Context, userID int64, alertType, marketID string) (*time.Time, error) {
	t, ok := s.history[historyKey{userID, alertType, marketID}]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *fakeSmartStore) InsertSnapshot(_ context.Context, snap *model.VolumeSnapshot) error {
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *fakeSmartStore) AverageHourlyVolume(_ context.Context, marketID string, since time.Time) (float64, int, error) {
	var sum float64
	n := 0
	for _, snap := range s.snapshots {
		if snap.MarketID == marketID && !snap.CapturedAt.Before(since) {
			sum += snap.Volume
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return sum / float64(n) / 24, n, nil
}

func (s *fakeSmartStore) EarliestSnapshot(_ context.Context, marketID string, since time.Time) (*model.VolumeSnapshot, error) {
	var best *model.VolumeSnapshot
	for _, snap := range s.snapshots {
		if snap.MarketID != marketID || snap.CapturedAt.Before(since) || snap.Price == nil {
			continue
		}
		if best == nil || snap.CapturedAt.Before(best.CapturedAt) {
			best = snap
		}
	}
	return best, nil
}

func (s *fakeSmartStore) RecentPrices(_ context.Context, marketID string, since time.Time, limit int) ([]float64, error) {
	var prices []float64
	for _, snap := range s.snapshots {
		if snap.MarketID == marketID && !snap.CapturedAt.Before(since) && snap.Price != nil {
			prices = append(prices, *snap.Price)
		}
	}
	if len(prices) > limit {
		prices = prices[len(prices)-limit:]
	}
	return prices, nil
}

func (s *fakeSmartStore) PruneSnapshots(_ context.Context, before time.Time) (int64, error) {
	s.pruned = before
	var kept []*model.VolumeSnapshot
	var n int64
	for _, snap := range s.snapshots {
		if snap.CapturedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, snap)
	}
	s.snapshots = kept
	return n, nil
}
