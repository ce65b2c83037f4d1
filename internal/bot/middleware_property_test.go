package bot

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"polypulse/internal/handler"
	"polypulse/internal/model"
)

// For any user, the premium gate calls the handler if and only if the user
// has premium access, and otherwise replies with the upgrade hint.
func TestPremiumMiddlewareProperty(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	isPremium := func(u *model.User) bool { return u.IsPremium(now) }
	mw := PremiumMiddleware(isPremium)

	rapid.Check(t, func(t *rapid.T) {
		status := rapid.SampledFrom([]string{
			model.StatusFree, model.StatusTrial, model.StatusPremium, model.StatusCancelled,
		}).Draw(t, "status")
		user := &model.User{ID: 1, SubscriptionStatus: status}
		if rapid.Bool().Draw(t, "hasExpiry") {
			offset := time.Duration(rapid.IntRange(-72, 72).Draw(t, "offsetHours")) * time.Hour
			exp := now.Add(offset)
			user.PremiumExpiresAt = &exp
		}

		c := newFakeContext(&tele.User{ID: 42})
		handler.SetUser(c, user, false)

		var called bool
		if err := mw(passThrough(&called))(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := isPremium(user)
		if called != want {
			t.Fatalf("status=%s expiry=%v: called=%v want %v", status, user.PremiumExpiresAt, called, want)
		}
		if !want && (len(c.replies) != 1 || c.replies[0] != handler.PremiumHint()) {
			t.Fatalf("expected upgrade hint, got %v", c.replies)
		}
	})
}
