package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"polypulse/internal/model"
	"polypulse/internal/polymarket"
	"polypulse/internal/repository"
)

// WatchlistRepo is the watchlist persistence WatchlistService needs.
type WatchlistRepo interface {
	Add(ctx context.Context, item *model.WatchlistItem) error
	Exists(ctx context.Context, userID int64, marketID string) (bool, error)
	Remove(ctx context.Context, userID int64, marketID string) error
	ListByUser(ctx context.Context, userID int64) ([]*model.WatchlistItem, error)
}

// PositionRepo is the position persistence PortfolioService needs.
type PositionRepo interface {
	Add(ctx context.Context, p *model.Position) error
	Remove(ctx context.Context, userID int64, marketID string) error
	ListByUser(ctx context.Context, userID int64) ([]*model.Position, error)
}

// Quote is a market's live price next to a stored reference value.
type Quote struct {
	Price     float64
	DayChange float64
	OK        bool
}

// WatchEntry is a watchlist item with its live quote.
type WatchEntry struct {
	Item  *model.WatchlistItem
	Quote Quote
}

// WatchlistService manages watchlists.
type WatchlistService struct {
	items   WatchlistRepo
	markets *MarketService
}

// NewWatchlistService creates a new WatchlistService instance.
func NewWatchlistService(items WatchlistRepo, markets *MarketService) *WatchlistService {
	return &WatchlistService{items: items, markets: markets}
}

// Add resolves the query and puts the market on the watchlist at its
// current price.
func (s *WatchlistService) Add(ctx context.Context, userID int64, query string) (*model.WatchlistItem, error) {
	market, err := s.markets.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	exists, err := s.items.Exists(ctx, userID, market.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyWatching
	}
	price, ok := market.YesPrice()
	if !ok {
		return nil, ErrNoPrice
	}

	item := &model.WatchlistItem{UserID: userID, MarketID: market.ID, MarketName: market.Question, PriceAtAdd: price}
	if err := s.items.Add(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Remove takes a market off the watchlist. The query is matched against
// the stored market names before falling back to a market search.
func (s *WatchlistService) Remove(ctx context.Context, userID int64, query string) (*model.WatchlistItem, error) {
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	item := matchItem(items, query)
	if item == nil {
		market, err := s.markets.Resolve(ctx, query)
		if err != nil {
			return nil, err
		}
		item = &model.WatchlistItem{UserID: userID, MarketID: market.ID, MarketName: market.Question}
	}
	if err := s.items.Remove(ctx, userID, item.MarketID); err != nil {
		return nil, err
	}
	return item, nil
}

// List returns the watchlist with live quotes. Markets that fail to load
// are returned without a quote.
func (s *WatchlistService) List(ctx context.Context, userID int64) ([]WatchEntry, error) {
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	out := make([]WatchEntry, 0, len(items))
	for _, it := range items {
		out = append(out, WatchEntry{Item: it, Quote: s.quote(ctx, it.MarketID)})
	}
	return out, nil
}

func (s *WatchlistService) quote(ctx context.Context, marketID string) Quote {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		log.Warn().Err(err).Str("market_id", marketID).Msg("Failed to quote market")
		return Quote{}
	}
	price, ok := m.YesPrice()
	return Quote{Price: price, DayChange: m.DayChange, OK: ok}
}

func matchItem(items []*model.WatchlistItem, query string) *model.WatchlistItem {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, it := range items {
		if it.MarketID == q {
			return it
		}
	}
	for _, it := range items {
		if q != "" && strings.Contains(strings.ToLower(it.MarketName), q) {
			return it
		}
	}
	return nil
}

// PositionValue is a position marked to market.
type PositionValue struct {
	Position *model.Position
	Current  float64
	PnL      float64
	OK       bool
}

// Portfolio is a user's positions with totals.
type Portfolio struct {
	Positions []PositionValue
	Cost      float64
	Value     float64
	PnL       float64
}

// PositionPnL returns (current - entry) * shares, where current is the price
// of the side held.
func PositionPnL(p *model.Position, current float64) float64 {
	return (current - p.EntryPrice) * p.Shares
}

// ParseSide normalizes yes/no.
func ParseSide(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return model.SideYes, nil
	case "no", "n":
		return model.SideNo, nil
	}
	return "", ErrInvalidSide
}

// PortfolioService manages manually entered positions.
type PortfolioService struct {
	positions PositionRepo
	markets   *MarketService
}

// NewPortfolioService creates a new PortfolioService instance.
func NewPortfolioService(positions PositionRepo, markets *MarketService) *PortfolioService {
	return &PortfolioService{positions: positions, markets: markets}
}

// Buy records a position. Entry price accepts the same forms as alert
// thresholds.
func (s *PortfolioService) Buy(ctx context.Context, userID int64, query, side string, shares float64, entry string) (*model.Position, error) {
	side, err := ParseSide(side)
	if err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, ErrInvalidAmount
	}
	price, err := ParseThreshold(entry)
	if err != nil {
		return nil, err
	}
	market, err := s.markets.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}

	p := &model.Position{UserID: userID, MarketID: market.ID, MarketName: market.Question, Side: side, Shares: shares, EntryPrice: price}
	if err := s.positions.Add(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Sell removes every position in the matched market.
func (s *PortfolioService) Sell(ctx context.Context, userID int64, query string) (string, error) {
	positions, err := s.positions.ListByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	for _, p := range positions {
		if p.MarketID == q || (q != "" && strings.Contains(strings.ToLower(p.MarketName), q)) {
			if err := s.positions.Remove(ctx, userID, p.MarketID); err != nil {
				return "", err
			}
			return p.MarketName, nil
		}
	}
	return "", repository.ErrPositionNotFound
}

// Summary marks every position to market.
func (s *PortfolioService) Summary(ctx context.Context, userID int64) (*Portfolio, error) {
	positions, err := s.positions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	out := &Portfolio{}
	quotes := make(map[string]*polymarket.Market)
	for _, p := range positions {
		v := PositionValue{Position: p}
		out.Cost += p.EntryPrice * p.Shares

		if _, ok := quotes[p.MarketID]; !ok {
			quotes[p.MarketID] = s.market(ctx, p.MarketID)
		}
		if current, ok := SidePrice(quotes[p.MarketID], p.Side); ok {
			v.Current = current
			v.PnL = PositionPnL(p, current)
			v.OK = true
			out.Value += current * p.Shares
			out.PnL += v.PnL
		} else {
			out.Value += p.EntryPrice * p.Shares
		}
		out.Positions = append(out.Positions, v)
	}
	return out, nil
}

// SidePrice returns the market's price for the YES or NO side.
func SidePrice(m *polymarket.Market, side string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	if side == model.SideNo {
		return m.NoPrice()
	}
	return m.YesPrice()
}

func (s *PortfolioService) market(ctx context.Context, marketID string) *polymarket.Market {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		if !errors.Is(err, ErrMarketNotFound) {
			log.Warn().Err(err).Str("market_id", marketID).Msg("Failed to price position")
		}
		return nil
	}
	return m
}
