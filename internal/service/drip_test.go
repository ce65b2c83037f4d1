package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polypulse/internal/model"
)

func TestNextDripStep(t *testing.T) {
	signup := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, -1, NextDripStep(0, signup, signup.Add(23*time.Hour)))
	assert.Equal(t, 0, NextDripStep(0, signup, signup.Add(24*time.Hour)))
	assert.Equal(t, -1, NextDripStep(1, signup, signup.Add(2*24*time.Hour)))
	assert.Equal(t, 1, NextDripStep(1, signup, signup.Add(3*24*time.Hour)))
	assert.Equal(t, 4, NextDripStep(4, signup, signup.Add(7*24*time.Hour)))
	assert.Equal(t, -1, NextDripStep(5, signup, signup.Add(30*24*time.Hour)))
}

func TestDripService_RunEndsTrial(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	users := newFakeUsers()
	users.byTG[500] = &model.User{ID: 1, TelegramID: 500, SubscriptionStatus: model.StatusTrial, TrialStep: 4, CreatedAt: now.Add(-8 * 24 * time.Hour)}
	users.byTG[600] = &model.User{ID: 2, TelegramID: 600, SubscriptionStatus: model.StatusTrial, TrialStep: 0, CreatedAt: now.Add(-2 * 24 * time.Hour)}
	users.byTG[700] = &model.User{ID: 3, TelegramID: 700, SubscriptionStatus: model.StatusTrial, TrialStep: 0, CreatedAt: now.Add(-time.Hour)}
	notifier := &fakeNotifier{}

	svc := NewDripService(users, notifier)
	svc.now = func() time.Time { return now }
	require.NoError(t, svc.Run(context.Background()))

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, model.StatusFree, users.statuses[1])
	assert.Equal(t, 5, users.steps[1])
	assert.Equal(t, 1, users.steps[2])
	_, touched := users.steps[3]
	assert.False(t, touched)

	// The ended trial drops out of the next run.
	require.NoError(t, svc.Run(context.Background()))
	assert.Len(t, notifier.sent, 2)
}

func TestAccountService_EnsureUserStartsTrial(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := newFakeUsers()
	svc := NewAccountService(users, 7)
	svc.now = func() time.Time { return now }

	u, created, err := svc.EnsureUser(context.Background(), 42, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusTrial, u.SubscriptionStatus)
	require.NotNil(t, u.PremiumExpiresAt)
	assert.Equal(t, now.Add(7*24*time.Hour), *u.PremiumExpiresAt)
	assert.True(t, svc.IsPremium(u))
	assert.Equal(t, 7, svc.TrialDaysLeft(u))

	u, created, err = svc.EnsureUser(context.Background(), 42, "alice2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice2", u.Username)

	svc.now = func() time.Time { return now.Add(8 * 24 * time.Hour) }
	assert.False(t, svc.IsPremium(u))
	assert.Equal(t, 0, svc.TrialDaysLeft(u))
}

func TestPredictionService(t *testing.T) {
	client := newFakeClient(mkt("1", "Will Bitcoin hit $100k?", 0.30))
	preds := &fakePredictions{}
	svc := NewPredictionService(preds, NewMarketService(client))
	ctx := context.Background()

	p, err := svc.Predict(ctx, 1, "bitcoin", "no")
	require.NoError(t, err)
	assert.Equal(t, model.SideNo, p.Side)
	assert.InDelta(t, 0.70, p.Odds, 1e-9)

	_, err = svc.Predict(ctx, 2, "bitcoin", "yes")
	require.NoError(t, err)

	// Still open: nothing resolves.
	require.NoError(t, svc.ResolveMarkets(ctx))
	assert.Nil(t, preds.predictions[0].Correct)

	client.markets["1"].Closed = true
	client.markets["1"].OutcomePrices = []float64{0, 1}
	require.NoError(t, svc.ResolveMarkets(ctx))
	require.NotNil(t, preds.predictions[0].Correct)
	assert.True(t, *preds.predictions[0].Correct)
	assert.False(t, *preds.predictions[1].Correct)

	_, err = svc.Predict(ctx, 3, "bitcoin", "yes")
	assert.ErrorIs(t, err, ErrMarketClosed)
}
