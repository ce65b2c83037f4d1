package monitor

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"polypulse/internal/model"
)

// TestAlertTriggerProperty checks an alert fires iff price >= threshold for
// above, and price <= threshold for below.
func TestAlertTriggerProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.Float64Range(0, 1).Draw(rt, "threshold")
		price := rapid.Float64Range(0, 1).Draw(rt, "price")
		direction := rapid.SampledFrom([]string{model.DirectionAbove, model.DirectionBelow}).Draw(rt, "direction")

		markets := newFakeMarkets()
		markets.markets["m"] = market("m", price)
		markets.markets["m"].OutcomePrices = []float64{price}
		store := &fakeAlertStore{alerts: []*model.Alert{
			{ID: 1, ChatID: 1, MarketID: "m", Threshold: threshold, Direction: direction, Active: true},
		}}
		notifier := &fakeNotifier{}

		if err := NewAlertEngine(store, markets, notifier, "", 0).Tick(context.Background()); err != nil {
			rt.Fatalf("tick failed: %v", err)
		}

		want := price >= threshold
		if direction == model.DirectionBelow {
			want = price <= threshold
		}
		if got := notifier.count() == 1; got != want {
			rt.Fatalf("direction=%s price=%v threshold=%v fired=%v want=%v", direction, price, threshold, got, want)
		}
	})
}
