// Package monitor holds the background jobs that watch Polymarket and
// notify users: the price alert engine, the whale monitor and the smart
// alert monitor. Each job exposes Tick, which the scheduler calls.
package monitor

import (
	"context"
	"time"

	"polypulse/internal/polymarket"
)

// MarketGetter fetches a single market.
type MarketGetter interface {
	GetMarket(ctx context.Context, id string) (*polymarket.Market, error)
}

// TrendingSource lists markets by 24h volume.
type TrendingSource interface {
	ListTrending(ctx context.Context, limit int) ([]polymarket.Market, error)
}

// TradeSource returns the latest trades.
type TradeSource interface {
	Latest(ctx context.Context, limit int) ([]polymarket.Trade, error)
}

// pause waits d or until ctx ends. It throttles upstream calls within a tick.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
