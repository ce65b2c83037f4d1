package service

import (
	"testing"

	"pgregory.net/rapid"

	"polypulse/internal/model"
)

// TestPositionPnLSignProperty checks P&L is positive iff the held side's
// price rose above entry.
func TestPositionPnLSignProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		entry := rapid.Float64Range(0, 1).Draw(t, "entry")
		current := rapid.Float64Range(0, 1).Draw(t, "current")
		shares := rapid.Float64Range(1, 1e6).Draw(t, "shares")
		pnl := PositionPnL(&model.Position{Shares: shares, EntryPrice: entry}, current)
		if (pnl > 0) != (current > entry) {
			t.Fatalf("entry=%v current=%v shares=%v pnl=%v", entry, current, shares, pnl)
		}
	})
}
