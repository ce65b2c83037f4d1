package monitor

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"polypulse/internal/model"
	"polypulse/internal/pkg/dedup"
	"polypulse/internal/polymarket"
)

// TestWhaleBelowMinimumProperty checks trades below the minimum never
// produce an event or a notification, and a repeated hash notifies once.
func TestWhaleBelowMinimumProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(rt, "n")
		var list []polymarket.Trade
		large := map[string]bool{}
		for i := 0; i < n; i++ {
			size := rapid.Float64Range(1, 200000).Draw(rt, "size")
			price := rapid.Float64Range(0.01, 0.99).Draw(rt, "price")
			hash := fmt.Sprintf("0x%d", rapid.IntRange(0, 10).Draw(rt, "hash"))
			tr := trade(hash, "Yes", "BUY", size, price)
			list = append(list, tr)
		}

		store := newFakeWhaleStore(&model.WhalePreference{UserID: 1, ChatID: 1, Enabled: true, MinUSD: 10000})
		notifier := &fakeNotifier{}
		m := NewWhaleMonitor(&fakeTrades{trades: list}, store, dedup.NewMemoryStore(100), notifier, WhaleOptions{MinUSD: 10000})
		if err := m.Tick(context.Background()); err != nil {
			rt.Fatalf("tick failed: %v", err)
		}

		for _, e := range store.events {
			if e.AmountUSD < 10000 {
				rt.Fatalf("event below minimum: %v", e.AmountUSD)
			}
			if large[e.TxHash] {
				rt.Fatalf("hash %s produced two events", e.TxHash)
			}
			large[e.TxHash] = true
		}
		if notifier.count() != len(store.events) {
			rt.Fatalf("sent %d notifications for %d events", notifier.count(), len(store.events))
		}
	})
}
