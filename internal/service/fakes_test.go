package service

import (
	"context"
	"sync"
	"time"

	"polypulse/internal/model"
	"polypulse/internal/polymarket"
	"polypulse/internal/repository"
)

type fakeClient struct {
	markets map[string]*polymarket.Market
	order   []string
}

func newFakeClient(markets ...*polymarket.Market) *fakeClient {
	c := &fakeClient{markets: map[string]*polymarket.Market{}}
	for _, m := range markets {
		c.markets[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	return c
}

func (c *fakeClient) ListTrending(_ context.Context, limit int) ([]polymarket.Market, error) {
	var out []polymarket.Market
	for _, id := range c.order {
		out = append(out, *c.markets[id])
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *fakeClient) Search(ctx context.Context, query string, limit int) ([]polymarket.Market, error) {
	all, _ := c.ListTrending(ctx, len(c.order))
	return polymarket.RankMarkets(all, query, limit), nil
}

func (c *fakeClient) GetMarket(_ context.Context, id string) (*polymarket.Market, error) {
	m, ok := c.markets[id]
	if !ok {
		return nil, polymarket.ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func mkt(id, question string, yes float64) *polymarket.Market {
	return &polymarket.Market{ID: id, Question: question, Slug: id, OutcomePrices: []float64{yes, 1 - yes}, Volume24h: 1000}
}

type fakeUsers struct {
	byTG    map[int64]*model.User
	nextID  int64
	statuses map[int64]string
	steps   map[int64]int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byTG: map[int64]*model.User{}, statuses: map[int64]string{}, steps: map[int64]int{}}
}

func (f *fakeUsers) GetOrCreate(_ context.Context, telegramID int64, username, status string, expiresAt *time.Time) (*model.User, bool, error) {
	if u, ok := f.byTG[telegramID]; ok {
		return u, false, nil
	}
	f.nextID++
	u := &model.User{ID: f.nextID, TelegramID: telegramID, Username: username, SubscriptionStatus: status, PremiumExpiresAt: expiresAt}
	f.byTG[telegramID] = u
	return u, true, nil
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	if u, ok := f.byTG[telegramID]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) UpdateUsername(_ context.Context, telegramID int64, username string) error {
	f.byTG[telegramID].Username = username
	return nil
}

func (f *fakeUsers) ListTrialUsers(context.Context) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.byTG {
		if u.SubscriptionStatus == model.StatusTrial {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) AdvanceTrialStep(_ context.Context, id int64, step int) error {
	f.steps[id] = step
	for _, u := range f.byTG {
		if u.ID == id {
			u.TrialStep = step
		}
	}
	return nil
}

func (f *fakeUsers) SetStatus(_ context.Context, id int64, status string) error {
	f.statuses[id] = status
	for _, u := range f.byTG {
		if u.ID == id {
			u.SubscriptionStatus = status
		}
	}
	return nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

func (f *fakeAlerts) Create(_ context.Context, a *model.Alert) (*model.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	cp.ID = int64(len(f.alerts) + 1)
	cp.Active = true
	f.alerts = append(f.alerts, &cp)
	return &cp, nil
}

func (f *fakeAlerts) ListByUser(_ context.Context, userID int64) ([]*model.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Alert
	for _, a := range f.alerts {
		if a.UserID == userID && a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	list, _ := f.ListByUser(ctx, userID)
	return len(list), nil
}

func (f *fakeAlerts) Delete(_ context.Context, userID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.alerts {
		if a.ID == id && a.UserID == userID {
			f.alerts = append(f.alerts[:i], f.alerts[i+1:]...)
			return nil
		}
	}
	return repository.ErrAlertNotFound
}

func (f *fakeAlerts) ListTriggeredSince(_ context.Context, userID int64, since time.Time) ([]*model.Alert, error) {
	var out []*model.Alert
	for _, a := range f.alerts {
		if a.UserID == userID && !a.Active && a.TriggeredAt != nil && !a.TriggeredAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeWatchlist struct {
	items []*model.WatchlistItem
}

func (f *fakeWatchlist) Add(_ context.Context, it *model.WatchlistItem) error {
	f.items = append(f.items, it)
	return nil
}

func (f *fakeWatchlist) Exists(_ context.Context, userID int64, marketID string) (bool, error) {
	for _, it := range f.items {
		if it.UserID == userID && it.MarketID == marketID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeWatchlist) Remove(_ context.Context, userID int64, marketID string) error {
	for i, it := range f.items {
		if it.UserID == userID && it.MarketID == marketID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrWatchlistItemNotFound
}

func (f *fakeWatchlist) ListByUser(_ context.Context, userID int64) ([]*model.WatchlistItem, error) {
	var out []*model.WatchlistItem
	for _, it := range f.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakePositions struct {
	positions []*model.Position
}

func (f *fakePositions) Add(_ context.Context, p *model.Position) error {
	f.positions = append(f.positions, p)
	return nil
}

func (f *fakePositions) Remove(_ context.Context, userID int64, marketID string) error {
	var kept []*model.Position
	removed := false
	for _, p := range f.positions {
		if p.UserID == userID && p.MarketID == marketID {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	f.positions = kept
	if !removed {
		return repository.ErrPositionNotFound
	}
	return nil
}

func (f *fakePositions) ListByUser(_ context.Context, userID int64) ([]*model.Position, error) {
	var out []*model.Position
	for _, p := range f.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePrefs struct {
	whale      map[int64]*model.WhalePreference
	smart      map[int64][]*model.SmartAlertPreference
	briefing   map[int64]*model.BriefingPreference
	categories map[int64][]string
	due        []*model.BriefingPreference
	marked     map[int64]time.Time
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{
		whale:      map[int64]*model.WhalePreference{},
		smart:      map[int64][]*model.SmartAlertPreference{},
		briefing:   map[int64]*model.BriefingPreference{},
		categories: map[int64][]string{},
		marked:     map[int64]time.Time{},
	}
}

func (f *fakePrefs) GetPreference(_ context.Context, userID int64) (*model.WhalePreference, error) {
	return f.whale[userID], nil
}

func (f *fakePrefs) UpsertPreference(_ context.Context, p *model.WhalePreference) error {
	f.whale[p.UserID] = p
	return nil
}

func (f *fakePrefs) Get(_ context.Context, userID int64) (*model.BriefingPreference, error) {
	return f.briefing[userID], nil
}

func (f *fakePrefs) Upsert(_ context.Context, p *model.BriefingPreference) error {
	f.briefing[p.UserID] = p
	return nil
}

func (f *fakePrefs) ListDue(context.Context, time.Time) ([]*model.BriefingPreference, error) {
	return f.due, nil
}

func (f *fakePrefs) MarkSent(_ context.Context, userID int64, at time.Time) error {
	f.marked[userID] = at
	return nil
}

func (f *fakePrefs) Subscribe(_ context.Context, userID int64, category string) error {
	for _, c := range f.categories[userID] {
		if c == category {
			return nil
		}
	}
	f.categories[userID] = append(f.categories[userID], category)
	return nil
}

func (f *fakePrefs) Unsubscribe(_ context.Context, userID int64, category string) (bool, error) {
	for i, c := range f.categories[userID] {
		if c == category {
			f.categories[userID] = append(f.categories[userID][:i], f.categories[userID][i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePrefs) ListByUser(_ context.Context, userID int64) ([]string, error) {
	return f.categories[userID], nil
}

type fakeSmartPrefs struct {
	prefs map[int64][]*model.SmartAlertPreference
}

func (f *fakeSmartPrefs) GetPreferences(_ context.Context, userID int64) ([]*model.SmartAlertPreference, error) {
	return f.prefs[userID], nil
}

func (f *fakeSmartPrefs) UpsertPreference(_ context.Context, p *model.SmartAlertPreference) error {
	list := f.prefs[p.UserID]
	for i, existing := range list {
		if existing.AlertType == p.AlertType {
			list[i] = p
			return nil
		}
	}
	f.prefs[p.UserID] = append(list, p)
	return nil
}

type fakeWhaleFeed struct {
	events []*model.WhaleEvent
}

func (f *fakeWhaleFeed) Recent(_ context.Context, _ time.Time, limit int) ([]*model.WhaleEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

type fakePredictions struct {
	predictions []*model.Prediction
}

func (f *fakePredictions) Create(_ context.Context, p *model.Prediction) error {
	for _, existing := range f.predictions {
		if existing.UserID == p.UserID && existing.MarketID == p.MarketID {
			return repository.ErrDuplicatePrediction
		}
	}
	f.predictions = append(f.predictions, p)
	return nil
}

func (f *fakePredictions) ListByUser(_ context.Context, userID int64, limit int) ([]*model.Prediction, error) {
	var out []*model.Prediction
	for _, p := range f.predictions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePredictions) ListUnresolvedMarkets(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range f.predictions {
		if p.Correct == nil && !seen[p.MarketID] {
			seen[p.MarketID] = true
			out = append(out, p.MarketID)
		}
	}
	return out, nil
}

func (f *fakePredictions) Resolve(_ context.Context, marketID, winner string) (int64, error) {
	var n int64
	for _, p := range f.predictions {
		if p.MarketID == marketID && p.Correct == nil {
			ok := p.Side == winner
			p.Correct = &ok
			n++
		}
	}
	return n, nil
}

func (f *fakePredictions) Leaderboard(context.Context, int, int) ([]*model.LeaderboardEntry, error) {
	return nil, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	sent []sentMessage
}

func (n *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.sent = append(n.sent, sentMessage{chatID, text})
	return nil
}
