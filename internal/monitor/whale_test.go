package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polypulse/internal/model"
	"polypulse/internal/pkg/dedup"
	"polypulse/internal/polymarket"
)

func trade(hash, outcome, side string, size, price float64) polymarket.Trade {
	return polymarket.Trade{
		Wallet:      "0xwallet",
		Side:        side,
		ConditionID: "0xmarket",
		Size:        decimal.NewFromFloat(size),
		Price:       decimal.NewFromFloat(price),
		Timestamp:   time.Unix(1767225600, 0),
		Title:       "Will Bitcoin hit $100k?",
		Slug:        "bitcoin-100k",
		Outcome:     outcome,
		TxHash:      hash,
	}
}

func newWhaleMonitor(trades *fakeTrades, store *fakeWhaleStore, notifier *fakeNotifier) *WhaleMonitor {
	return NewWhaleMonitor(trades, store, dedup.NewMemoryStore(100), notifier, WhaleOptions{
		MinUSD:   10000,
		DailyCap: 2,
		SiteURL:  "https://polymarket.com",
	})
}

func TestClassifySide(t *testing.T) {
	assert.Equal(t, model.SideYes, ClassifySide("Yes", "BUY"))
	assert.Equal(t, model.SideNo, ClassifySide("Yes", "SELL"))
	assert.Equal(t, model.SideNo, ClassifySide("No", "BUY"))
	assert.Equal(t, model.SideYes, ClassifySide("No", "SELL"))
	assert.InDelta(t, 0.3, ImpliedYes("No", 0.7), 1e-9)
	assert.InDelta(t, 0.7, ImpliedYes("Yes", 0.7), 1e-9)
}

func TestWhaleMonitor_DetectsAndNotifies(t *testing.T) {
	store := newFakeWhaleStore(
		&model.WhalePreference{UserID: 1, ChatID: 100, Enabled: true, MinUSD: 10000},
		&model.WhalePreference{UserID: 2, ChatID: 200, Enabled: true, MinUSD: 50000},
	)
	notifier := &fakeNotifier{}
	trades := &fakeTrades{trades: []polymarket.Trade{
		trade("0x1", "Yes", "BUY", 40000, 0.5),  // $20,000
		trade("0x2", "No", "BUY", 1000, 0.4),    // $400, below minimum
		trade("0x3", "No", "BUY", 100000, 0.6),  // $60,000
	}}

	m := newWhaleMonitor(trades, store, notifier)
	require.NoError(t, m.Tick(context.Background()))

	require.Len(t, store.events, 2)
	assert.Equal(t, model.SideYes, store.events[0].Side)
	assert.Nil(t, store.events[0].OddsBefore)
	assert.Equal(t, model.SideNo, store.events[1].Side)
	require.NotNil(t, store.events[1].OddsBefore)
	assert.InDelta(t, 0.5, *store.events[1].OddsBefore, 1e-9)
	assert.InDelta(t, 0.4, store.events[1].OddsAfter, 1e-9)

	// user 1 gets both, user 2 only the $60K trade
	assert.Equal(t, 2, store.sent[1])
	assert.Equal(t, 1, store.sent[2])
	assert.Equal(t, 3, notifier.count())
	assert.Contains(t, notifier.sent[len(notifier.sent)-1].text, "2 trades")

	// Same trades again: nothing new.
	require.NoError(t, m.Tick(context.Background()))
	assert.Len(t, store.events, 2)
	assert.Equal(t, 3, notifier.count())
}

func TestWhaleMonitor_DailyCap(t *testing.T) {
	store := newFakeWhaleStore(&model.WhalePreference{UserID: 1, ChatID: 100, Enabled: true, MinUSD: 10000})
	notifier := &fakeNotifier{}
	var list []polymarket.Trade
	for i := 0; i < 5; i++ {
		list = append(list, trade(fmt.Sprintf("0x%d", i), "Yes", "BUY", 50000, 0.5))
	}

	m := newWhaleMonitor(&fakeTrades{trades: list}, store, notifier)
	require.NoError(t, m.Tick(context.Background()))

	assert.Len(t, store.events, 5, "events are logged regardless of the cap")
	assert.Equal(t, 2, notifier.count())
}
