package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"polypulse/internal/handler"
	"polypulse/internal/model"
)

// fakeContext implements the parts of tele.Context the middleware uses.
type fakeContext struct {
	tele.Context
	sender  *tele.User
	store   map[string]interface{}
	replies []string
}

func newFakeContext(sender *tele.User) *fakeContext {
	return &fakeContext{sender: sender, store: make(map[string]interface{})}
}

func (c *fakeContext) Sender() *tele.User            { return c.sender }
func (c *fakeContext) Chat() *tele.Chat              { return nil }
func (c *fakeContext) Text() string                  { return "/cmd" }
func (c *fakeContext) Get(key string) interface{}    { return c.store[key] }
func (c *fakeContext) Set(key string, v interface{}) { c.store[key] = v }

func (c *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	c.replies = append(c.replies, fmt.Sprint(what))
	return nil
}

type fakeEnsurer struct {
	users map[int64]*model.User
	err   error
}

func (f *fakeEnsurer) EnsureUser(_ context.Context, telegramID int64, username string) (*model.User, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if u, ok := f.users[telegramID]; ok {
		return u, false, nil
	}
	u := &model.User{ID: int64(len(f.users) + 1), TelegramID: telegramID, Username: username, SubscriptionStatus: model.StatusTrial}
	f.users[telegramID] = u
	return u, true, nil
}

func passThrough(called *bool) tele.HandlerFunc {
	return func(tele.Context) error {
		*called = true
		return nil
	}
}

func TestUserMiddleware(t *testing.T) {
	accounts := &fakeEnsurer{users: make(map[int64]*model.User)}
	mw := UserMiddleware(accounts)

	var seen *model.User
	var created bool
	next := func(c tele.Context) error {
		seen = handler.CurrentUser(c)
		created = handler.IsNewUser(c)
		return nil
	}

	c := newFakeContext(&tele.User{ID: 42, FirstName: "Alice"})
	require.NoError(t, mw(next)(c))
	require.NotNil(t, seen)
	assert.Equal(t, int64(42), seen.TelegramID)
	assert.Equal(t, "Alice", seen.Username)
	assert.True(t, created)

	c = newFakeContext(&tele.User{ID: 42, Username: "alice"})
	require.NoError(t, mw(next)(c))
	assert.False(t, created)
	assert.Len(t, accounts.users, 1)
}

func TestUserMiddlewareSkipsBotsAndFailures(t *testing.T) {
	var called bool

	c := newFakeContext(&tele.User{ID: 1, IsBot: true})
	require.NoError(t, UserMiddleware(&fakeEnsurer{users: map[int64]*model.User{}})(passThrough(&called))(c))
	assert.False(t, called)

	c = newFakeContext(&tele.User{ID: 2})
	require.NoError(t, UserMiddleware(&fakeEnsurer{err: errors.New("db down")})(passThrough(&called))(c))
	assert.False(t, called)
	assert.Equal(t, []string{handler.GenericError}, c.replies)
}

func TestPremiumMiddlewareRules(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	tests := []struct {
		name string
		user model.User
		want bool
	}{
		{"free", model.User{SubscriptionStatus: model.StatusFree}, false},
		{"trial active", model.User{SubscriptionStatus: model.StatusTrial, PremiumExpiresAt: &future}, true},
		{"trial expired", model.User{SubscriptionStatus: model.StatusTrial, PremiumExpiresAt: &past}, false},
		{"premium open ended", model.User{SubscriptionStatus: model.StatusPremium}, true},
		{"cancelled in period", model.User{SubscriptionStatus: model.StatusCancelled, PremiumExpiresAt: &future}, true},
		{"cancelled lapsed", model.User{SubscriptionStatus: model.StatusCancelled, PremiumExpiresAt: &past}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeContext(&tele.User{ID: 42})
			user := tt.user
			handler.SetUser(c, &user, false)

			var called bool
			mw := PremiumMiddleware(func(u *model.User) bool { return u.IsPremium(now) })
			require.NoError(t, mw(passThrough(&called))(c))
			assert.Equal(t, tt.want, called)
		})
	}
}

func TestPremiumMiddlewareWithoutUser(t *testing.T) {
	var called bool
	c := newFakeContext(&tele.User{ID: 42})
	require.NoError(t, PremiumMiddleware(func(*model.User) bool { return true })(passThrough(&called))(c))
	assert.False(t, called)
	assert.Empty(t, c.replies)
}

func TestRecoveryMiddleware(t *testing.T) {
	c := newFakeContext(&tele.User{ID: 42})
	boom := func(tele.Context) error { panic("boom") }

	require.NoError(t, RecoveryMiddleware()(boom)(c))
	assert.Equal(t, []string{handler.GenericError}, c.replies)
}

func TestLoggingMiddlewarePassesError(t *testing.T) {
	want := errors.New("handler failed")
	c := newFakeContext(&tele.User{ID: 42})
	err := LoggingMiddleware()(func(tele.Context) error { return want })(c)
	assert.ErrorIs(t, err, want)
}
