package handler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"polypulse/internal/billing"
	"polypulse/internal/model"
	"polypulse/internal/pkg/lock"
	"polypulse/internal/polymarket"
	"polypulse/internal/repository"
	"polypulse/internal/service"
)

// fakeContext implements the parts of tele.Context the handlers use.
type fakeContext struct {
	tele.Context
	args    []string
	sender  *tele.User
	chat    *tele.Chat
	store   map[string]interface{}
	replies []string
}

func newFakeContext(args ...string) *fakeContext {
	return &fakeContext{
		args:   args,
		sender: &tele.User{ID: 42, Username: "alice"},
		chat:   &tele.Chat{ID: 4242, Type: tele.ChatPrivate},
		store:  make(map[string]interface{}),
	}
}

func (c *fakeContext) Args() []string                { return c.args }
func (c *fakeContext) Sender() *tele.User            { return c.sender }
func (c *fakeContext) Chat() *tele.Chat              { return c.chat }
func (c *fakeContext) Get(key string) interface{}    { return c.store[key] }
func (c *fakeContext) Set(key string, v interface{}) { c.store[key] = v }

func (c *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	c.replies = append(c.replies, fmt.Sprint(what))
	return nil
}

func TestParseAlertArgs(t *testing.T) {
	tests := []struct {
		args      []string
		query     string
		price     string
		direction string
		ok        bool
	}{
		{[]string{"bitcoin", "0.65"}, "bitcoin", "0.65", "", true},
		{[]string{"bitcoin", "100k", "65%"}, "bitcoin 100k", "65%", "", true},
		{[]string{"bitcoin", "100k", "0.4", "below"}, "bitcoin 100k", "0.4", "below", true},
		{[]string{"fed", "cut", "70", "ABOVE"}, "fed cut", "70", "above", true},
		{[]string{"above", "0.5"}, "above", "0.5", "", true},
		{[]string{"0.65"}, "", "", "", false},
		{nil, "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			query, price, direction, ok := parseAlertArgs(tt.args)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.query, query)
			assert.Equal(t, tt.price, price)
			assert.Equal(t, tt.direction, direction)
		})
	}
}

func TestSplitTail(t *testing.T) {
	query, tail, ok := splitTail([]string{"will", "it", "rain", "yes", "10", "0.4"}, 3)
	require.True(t, ok)
	assert.Equal(t, "will it rain", query)
	assert.Equal(t, []string{"yes", "10", "0.4"}, tail)

	_, _, ok = splitTail([]string{"yes", "10", "0.4"}, 3)
	assert.False(t, ok)
}

func TestParseUSD(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		err  bool
	}{
		{"50000", 50000, false},
		{"50,000", 50000, false},
		{"$50k", 50000, false},
		{"1.5M", 1500000, false},
		{"250K", 250000, false},
		{"0", 0, true},
		{"-10", 0, true},
		{"abc", 0, true},
		{"10x", 0, true},
		{"NaN", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseUSD(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, service.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	known := []error{
		service.ErrMarketNotFound,
		service.ErrInvalidThreshold,
		service.ErrAlertLimit,
		service.ErrUnknownCategory,
		repository.ErrAlertNotFound,
		repository.ErrPositionNotFound,
		lock.ErrLockTimeout,
		billing.ErrNotConfigured,
		billing.ErrNoSubscription,
	}
	for _, err := range known {
		msg, ok := ErrorMessage(fmt.Errorf("wrapped: %w", err))
		assert.True(t, ok, err.Error())
		assert.NotEqual(t, GenericError, msg)
	}

	msg, ok := ErrorMessage(errors.New("connection refused"))
	assert.False(t, ok)
	assert.Equal(t, GenericError, msg)

	msg, _ = ErrorMessage(service.ErrUnknownCategory)
	assert.Contains(t, msg, "crypto")
}

func TestHandlersRequireUser(t *testing.T) {
	c := newFakeContext("bitcoin", "0.5")
	h := NewAlertHandler(nil, nil)

	require.NoError(t, h.HandleAlert(c))
	require.NoError(t, h.HandleAlerts(c))
	assert.Empty(t, c.replies)
}

func TestHandleAlertUsage(t *testing.T) {
	c := newFakeContext("0.5")
	SetUser(c, &model.User{ID: 1, TelegramID: 42}, false)

	require.NoError(t, NewAlertHandler(nil, nil).HandleAlert(c))
	require.Len(t, c.replies, 1)
	assert.True(t, strings.HasPrefix(c.replies[0], "Usage: /alert"))
}

func TestHandleCancelAlertRejectsBadID(t *testing.T) {
	for _, arg := range []string{"abc", "0", "-3"} {
		c := newFakeContext(arg)
		SetUser(c, &model.User{ID: 1, TelegramID: 42}, false)

		require.NoError(t, NewAlertHandler(nil, nil).HandleCancelAlert(c))
		require.Len(t, c.replies, 1)
		assert.Contains(t, c.replies[0], "Usage: /cancelalert")
	}
}

func TestHandleWhalesRejectsBadAmount(t *testing.T) {
	c := newFakeContext("lots")
	SetUser(c, &model.User{ID: 1, TelegramID: 42}, false)

	require.NoError(t, NewPreferenceHandler(nil, nil, nil).HandleWhales(c))
	require.Len(t, c.replies, 1)
	assert.Contains(t, c.replies[0], "positive number")
}

func TestSetUser(t *testing.T) {
	c := newFakeContext()
	assert.Nil(t, CurrentUser(c))
	assert.False(t, IsNewUser(c))

	u := &model.User{ID: 7}
	SetUser(c, u, true)
	assert.Same(t, u, CurrentUser(c))
	assert.True(t, IsNewUser(c))
}

func TestRenderAlerts(t *testing.T) {
	assert.Contains(t, renderAlerts(nil, false, 3), "no active alerts")

	alerts := []*model.Alert{
		{ID: 5, MarketName: "Will *BTC* hit 100k?", Threshold: 0.65, Direction: model.DirectionAbove},
		{ID: 9, MarketName: "Fed cut", Threshold: 0.2, Direction: model.DirectionBelow},
	}
	out := renderAlerts(alerts, false, 3)
	assert.Contains(t, out, "#5")
	assert.Contains(t, out, `\*BTC\*`)
	assert.Contains(t, out, "above 65%")
	assert.Contains(t, out, "below 20%")
	assert.Contains(t, out, "2/3 free alerts used")

	assert.NotContains(t, renderAlerts(alerts, true, 3), "free alerts used")
}

func TestRenderMarket(t *testing.T) {
	m := &polymarket.Market{
		ID:            "123",
		Question:      "Will it_rain?",
		EventSlug:     "rain",
		OutcomePrices: []float64{0.734, 0.266},
		DayChange:     0.05,
		Volume:        2_450_000,
		Volume24h:     850,
		EndDate:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	out := renderMarket(m, "https://polymarket.com")
	assert.Contains(t, out, `Will it\_rain?`)
	assert.Contains(t, out, "73.4%")
	assert.Contains(t, out, "26.6%")
	assert.Contains(t, out, "+5.0pt")
	assert.Contains(t, out, "$2.5M")
	assert.Contains(t, out, "$850")
	assert.Contains(t, out, "2026-12-31")
	assert.Contains(t, out, "https://polymarket.com/event/rain")
}

func TestRenderMarketEscapesLink(t *testing.T) {
	m := &polymarket.Market{ID: "9", Question: "Fed cut?", EventSlug: "fed_rate_cut"}
	out := renderMarket(m, "https://polymarket.com")
	assert.Contains(t, out, `https://polymarket.com/event/fed\_rate\_cut`)
}

func TestRenderTrendingUsesWholePercent(t *testing.T) {
	out := renderTrending([]polymarket.Market{
		{ID: "1", Question: "A", OutcomePrices: []float64{0.734}},
		{ID: "2", Question: "B"},
	})
	assert.Contains(t, out, "1. A")
	assert.Contains(t, out, "YES 73%")
	assert.Contains(t, out, "YES N/A")
}

func TestRenderPortfolio(t *testing.T) {
	assert.Contains(t, renderPortfolio(&service.Portfolio{}), "No positions")

	p := &service.Portfolio{
		Positions: []service.PositionValue{
			{Position: &model.Position{MarketName: "A", Side: model.SideYes, Shares: 100, EntryPrice: 0.4}, Current: 0.6, PnL: 20, OK: true},
			{Position: &model.Position{MarketName: "B", Side: model.SideNo, Shares: 10, EntryPrice: 0.5}},
		},
		Cost:  45,
		Value: 65,
		PnL:   20,
	}
	out := renderPortfolio(p)
	assert.Contains(t, out, "YES 100.00 @ 40.0% → 60.0% · P&L +$20")
	assert.Contains(t, out, "NO 10.00 @ 50.0% → N/A")
	assert.Contains(t, out, "P&L: *+$20*")
}

func TestRenderLeaderboard(t *testing.T) {
	assert.Contains(t, renderLeaderboard(nil), "3 resolved predictions")

	out := renderLeaderboard([]*model.LeaderboardEntry{
		{UserID: 1, Username: "bob_b", Total: 4, Correct: 3, Accuracy: 0.75},
		{UserID: 2, Total: 5, Correct: 2, Accuracy: 0.4},
	})
	assert.Contains(t, out, `1. bob\_b  75.0% (3/4)`)
	assert.Contains(t, out, "2. user 2  40.0% (2/5)")
}

func TestRenderAccount(t *testing.T) {
	exp := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, renderAccount(&model.User{SubscriptionStatus: model.StatusTrial, PremiumExpiresAt: &exp}, true, 3), "3 day(s) left")
	assert.Contains(t, renderAccount(&model.User{SubscriptionStatus: model.StatusPremium}, true, 0), "Premium member")
	assert.Contains(t, renderAccount(&model.User{SubscriptionStatus: model.StatusCancelled, PremiumExpiresAt: &exp}, true, 0), "2026-11-01")
	assert.Contains(t, renderAccount(&model.User{SubscriptionStatus: model.StatusTrial, PremiumExpiresAt: &exp}, false, 0), "Free plan")
}

func TestRenderSubscription(t *testing.T) {
	u := &model.User{SubscriptionStatus: model.StatusPremium}
	out := renderSubscription(u, &billing.SubscriptionInfo{
		Status:            "active",
		CurrentPeriodEnd:  time.Date(2026, 11, 17, 0, 0, 0, 0, time.UTC),
		CancelAtPeriodEnd: true,
	})
	assert.Contains(t, out, "Billing status: active")
	assert.Contains(t, out, "Ends: 2026-11-17")
}
