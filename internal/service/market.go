package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"polypulse/internal/polymarket"
)

// MarketService looks up markets for commands.
type MarketService struct {
	client MarketClient
}

// NewMarketService creates a new MarketService instance.
func NewMarketService(client MarketClient) *MarketService {
	return &MarketService{client: client}
}

// Trending returns the top markets by 24h volume.
func (s *MarketService) Trending(ctx context.Context, limit int) ([]polymarket.Market, error) {
	markets, err := s.client.ListTrending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trending markets: %w", err)
	}
	return markets, nil
}

// Search returns markets matching the query, best first.
func (s *MarketService) Search(ctx context.Context, query string, limit int) ([]polymarket.Market, error) {
	markets, err := s.client.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search markets: %w", err)
	}
	return markets, nil
}

// Get fetches a market by id with a fresh price.
func (s *MarketService) Get(ctx context.Context, id string) (*polymarket.Market, error) {
	m, err := s.client.GetMarket(ctx, id)
	if err != nil {
		if errors.Is(err, polymarket.ErrMarketNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return m, nil
}

// Resolve turns a free-text query or a numeric market id into a market with
// a fresh price.
func (s *MarketService) Resolve(ctx context.Context, query string) (*polymarket.Market, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMarketNotFound
	}
	if isMarketID(query) {
		m, err := s.Get(ctx, query)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrMarketNotFound) {
			return nil, err
		}
	}

	hits, err := s.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, ErrMarketNotFound
	}
	m, err := s.Get(ctx, hits[0].ID)
	if err != nil {
		// The cached search hit still carries a usable price.
		return &hits[0], nil
	}
	return m, nil
}

func isMarketID(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
