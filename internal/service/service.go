// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"

	"polypulse/internal/polymarket"
)

// Errors returned to the command handlers. Each maps to a user-facing reply.
var (
	ErrPremiumRequired  = errors.New("premium required")
	ErrMarketNotFound   = errors.New("market not found")
	ErrNoPrice          = errors.New("market has no price")
	ErrInvalidThreshold = errors.New("invalid threshold: must be between 0 and 1")
	ErrInvalidDirection = errors.New("invalid direction: must be above or below")
	ErrAlertLimit       = errors.New("free alert limit reached")
	ErrAlreadyWatching  = errors.New("market already on watchlist")
	ErrInvalidSide      = errors.New("invalid side: must be yes or no")
	ErrInvalidAmount    = errors.New("invalid amount: must be positive")
	ErrInvalidHour      = errors.New("invalid hour: must be 0-23")
	ErrInvalidTimezone  = errors.New("invalid timezone")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownAlertType = errors.New("unknown smart alert type")
	ErrMarketClosed     = errors.New("market is closed")
)

// MarketClient is the market data the services read.
type MarketClient interface {
	ListTrending(ctx context.Context, limit int) ([]polymarket.Market, error)
	Search(ctx context.Context, query string, limit int) ([]polymarket.Market, error)
	GetMarket(ctx context.Context, id string) (*polymarket.Market, error)
}
