package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polypulse/internal/model"
	"polypulse/internal/pkg/lock"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.65", 0.65, false},
		{"65", 0.65, false},
		{"65%", 0.65, false},
		{" 7.5% ", 0.075, false},
		{"1", 1, false},
		{"0", 0, false},
		{"100", 1, false},
		{"150", 0, true},
		{"-0.2", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseThreshold(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidThreshold)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestInferDirection(t *testing.T) {
	assert.Equal(t, model.DirectionAbove, InferDirection(0.40, 0.65))
	assert.Equal(t, model.DirectionBelow, InferDirection(0.40, 0.25))
	assert.Equal(t, model.DirectionAbove, InferDirection(0.40, 0.40))

	d, err := ParseDirection("Below")
	require.NoError(t, err)
	assert.Equal(t, model.DirectionBelow, d)
	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func newAlertService(users *fakeUsers, alerts *fakeAlerts, client *fakeClient) (*AlertService, *AccountService) {
	accounts := NewAccountService(users, 7)
	return NewAlertService(alerts, NewMarketService(client), accounts, lock.NewUserLock(), 3), accounts
}

func TestAlertService_CreateInfersDirection(t *testing.T) {
	users := newFakeUsers()
	alerts := &fakeAlerts{}
	svc, _ := newAlertService(users, alerts, newFakeClient(mkt("1", "Will Bitcoin hit $100k?", 0.40)))
	user := &model.User{ID: 1, SubscriptionStatus: model.StatusFree}

	a, m, err := svc.Create(context.Background(), CreateAlertRequest{User: user, ChatID: 10, Query: "bitcoin", Threshold: "65%"})
	require.NoError(t, err)
	assert.Equal(t, "1", m.ID)
	assert.Equal(t, model.DirectionAbove, a.Direction)
	assert.InDelta(t, 0.65, a.Threshold, 1e-9)
	assert.Equal(t, "Will Bitcoin hit $100k?", a.MarketName)

	a, _, err = svc.Create(context.Background(), CreateAlertRequest{User: user, ChatID: 10, Query: "bitcoin", Threshold: "0.3"})
	require.NoError(t, err)
	assert.Equal(t, model.DirectionBelow, a.Direction)

	a, _, err = svc.Create(context.Background(), CreateAlertRequest{User: user, ChatID: 10, Query: "1", Threshold: "0.3", Direction: "above"})
	require.NoError(t, err)
	assert.Equal(t, model.DirectionAbove, a.Direction)
}

func TestAlertService_FreeLimit(t *testing.T) {
	users := newFakeUsers()
	alerts := &fakeAlerts{}
	svc, _ := newAlertService(users, alerts, newFakeClient(mkt("1", "Will Bitcoin hit $100k?", 0.40)))
	free := &model.User{ID: 1, SubscriptionStatus: model.StatusFree}

	for i := 0; i < 3; i++ {
		_, _, err := svc.Create(context.Background(), CreateAlertRequest{User: free, Query: "bitcoin", Threshold: "50"})
		require.NoError(t, err)
	}
	_, _, err := svc.Create(context.Background(), CreateAlertRequest{User: free, Query: "bitcoin", Threshold: "50"})
	assert.ErrorIs(t, err, ErrAlertLimit)

	future := time.Now().Add(time.Hour)
	premium := &model.User{ID: 2, SubscriptionStatus: model.StatusPremium, PremiumExpiresAt: &future}
	for i := 0; i < 5; i++ {
		_, _, err := svc.Create(context.Background(), CreateAlertRequest{User: premium, Query: "bitcoin", Threshold: "50"})
		require.NoError(t, err)
	}
}

func TestAlertService_FreeLimitUnderConcurrency(t *testing.T) {
	alerts := &fakeAlerts{}
	svc, _ := newAlertService(newFakeUsers(), alerts, newFakeClient(mkt("1", "Will Bitcoin hit $100k?", 0.40)))
	free := &model.User{ID: 1, SubscriptionStatus: model.StatusFree}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = svc.Create(context.Background(), CreateAlertRequest{User: free, Query: "bitcoin", Threshold: "50"})
		}()
	}
	wg.Wait()

	n, _ := alerts.CountActiveByUser(context.Background(), 1)
	assert.Equal(t, 3, n)
}

func TestAlertService_Errors(t *testing.T) {
	svc, _ := newAlertService(newFakeUsers(), &fakeAlerts{}, newFakeClient(mkt("1", "Will Bitcoin hit $100k?", 0.40)))
	user := &model.User{ID: 1}

	_, _, err := svc.Create(context.Background(), CreateAlertRequest{User: user, Query: "bitcoin", Threshold: "2.5"})
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, _, err = svc.Create(context.Background(), CreateAlertRequest{User: user, Query: "ethereum flippening", Threshold: "50"})
	assert.ErrorIs(t, err, ErrMarketNotFound)

	assert.Error(t, svc.Cancel(context.Background(), 1, 99))
}
