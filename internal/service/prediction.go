package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"polypulse/internal/model"
)

// PredictionRepo is the prediction persistence PredictionService needs.
type PredictionRepo interface {
	Create(ctx context.Context, p *model.Prediction) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Prediction, error)
	ListUnresolvedMarkets(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, marketID, winningSide string) (int64, error)
	Leaderboard(ctx context.Context, minResolved, limit int) ([]*model.LeaderboardEntry, error)
}

// Leaderboard ranking settings.
const (
	LeaderboardMinResolved = 3
	LeaderboardSize        = 10
)

// PredictionService handles user predictions and their resolution.
type PredictionService struct {
	predictions PredictionRepo
	markets     *MarketService
}

// NewPredictionService creates a new PredictionService instance.
func NewPredictionService(predictions PredictionRepo, markets *MarketService) *PredictionService {
	return &PredictionService{predictions: predictions, markets: markets}
}

// Predict records the user's call at the side's current odds.
func (s *PredictionService) Predict(ctx context.Context, userID int64, query, side string) (*model.Prediction, error) {
	side, err := ParseSide(side)
	if err != nil {
		return nil, err
	}
	market, err := s.markets.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if market.Closed {
		return nil, ErrMarketClosed
	}
	odds, ok := SidePrice(market, side)
	if !ok {
		return nil, ErrNoPrice
	}

	p := &model.Prediction{UserID: userID, MarketID: market.ID, MarketName: market.Question, Side: side, Odds: odds}
	if err := s.predictions.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the user's most recent predictions.
func (s *PredictionService) List(ctx context.Context, userID int64, limit int) ([]*model.Prediction, error) {
	return s.predictions.ListByUser(ctx, userID, limit)
}

// Leaderboard returns the top predictors.
func (s *PredictionService) Leaderboard(ctx context.Context) ([]*model.LeaderboardEntry, error) {
	return s.predictions.Leaderboard(ctx, LeaderboardMinResolved, LeaderboardSize)
}

// ResolveMarkets settles open predictions on markets that have closed.
// A market that fails to load is retried on the next run.
func (s *PredictionService) ResolveMarkets(ctx context.Context) error {
	ids, err := s.predictions.ListUnresolvedMarkets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unresolved markets: %w", err)
	}

	settled := 0
	for _, id := range ids {
		market, err := s.markets.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrMarketNotFound) {
				log.Warn().Err(err).Str("market_id", id).Msg("Failed to load market for resolution")
			}
			continue
		}
		winner, ok := market.Winner()
		if !ok {
			continue
		}
		n, err := s.predictions.Resolve(ctx, id, winner)
		if err != nil {
			log.Warn().Err(err).Str("market_id", id).Msg("Failed to resolve predictions")
			continue
		}
		settled += int(n)
		log.Info().Str("market_id", id).Str("winner", winner).Int64("predictions", n).Msg("Market resolved")
	}

	log.Debug().Int("markets", len(ids)).Int("settled", settled).Msg("Prediction resolution complete")
	return nil
}
