package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"polypulse/internal/model"
	"polypulse/internal/pkg/lock"
	"polypulse/internal/polymarket"
	"polypulse/internal/repository"
)

// AlertRepo is the alert persistence AlertService needs.
type AlertRepo interface {
	Create(ctx context.Context, a *model.Alert) (*model.Alert, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Alert, error)
	CountActiveByUser(ctx context.Context, userID int64) (int, error)
	Delete(ctx context.Context, userID, id int64) error
}

// AlertService creates and manages price alerts.
type AlertService struct {
	alerts    AlertRepo
	markets   *MarketService
	accounts  *AccountService
	locks     *lock.UserLock
	freeLimit int
}

// NewAlertService creates a new AlertService instance. Free users may hold
// at most freeLimit active alerts.
func NewAlertService(alerts AlertRepo, markets *MarketService, accounts *AccountService, locks *lock.UserLock, freeLimit int) *AlertService {
	if freeLimit <= 0 {
		freeLimit = 3
	}
	return &AlertService{
		alerts:    alerts,
		markets:   markets,
		accounts:  accounts,
		locks:     locks,
		freeLimit: freeLimit,
	}
}

// ParseThreshold accepts 0.65, 65 or 65% and returns a price in [0,1].
func ParseThreshold(s string) (float64, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidThreshold
	}
	if percent || v > 1 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, ErrInvalidThreshold
	}
	return v, nil
}

// ParseDirection normalizes an explicit direction argument.
func ParseDirection(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", "over", ">", ">=":
		return model.DirectionAbove, nil
	case "below", "under", "<", "<=":
		return model.DirectionBelow, nil
	}
	return "", ErrInvalidDirection
}

// InferDirection picks the direction that fires when the price moves from
// current to threshold.
func InferDirection(current, threshold float64) string {
	if threshold >= current {
		return model.DirectionAbove
	}
	return model.DirectionBelow
}

// CreateAlertRequest is a parsed /alert command.
type CreateAlertRequest struct {
	User      *model.User
	ChatID    int64
	Query     string
	Threshold string
	Direction string
}

// Create resolves the market and stores an alert. The free tier limit is
// checked and the row inserted under the user's lock.
func (s *AlertService) Create(ctx context.Context, req CreateAlertRequest) (*model.Alert, *polymarket.Market, error) {
	threshold, err := ParseThreshold(req.Threshold)
	if err != nil {
		return nil, nil, err
	}

	market, err := s.markets.Resolve(ctx, req.Query)
	if err != nil {
		return nil, nil, err
	}
	current, ok := market.YesPrice()
	if !ok {
		return nil, nil, ErrNoPrice
	}

	direction := InferDirection(current, threshold)
	if req.Direction != "" {
		if direction, err = ParseDirection(req.Direction); err != nil {
			return nil, nil, err
		}
	}

	var created *model.Alert
	err = s.locks.WithLock(ctx, req.User.ID, func() error {
		if !s.accounts.IsPremium(req.User) {
			n, err := s.alerts.CountActiveByUser(ctx, req.User.ID)
			if err != nil {
				return err
			}
			if n >= s.freeLimit {
				return ErrAlertLimit
			}
		}
		created, err = s.alerts.Create(ctx, &model.Alert{
			UserID:     req.User.ID,
			ChatID:     req.ChatID,
			MarketID:   market.ID,
			MarketName: market.Question,
			Threshold:  threshold,
			Direction:  direction,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlertLimit) || errors.Is(err, lock.ErrLockTimeout) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to create alert: %w", err)
	}

	log.Info().
		Int64("user_id", req.User.ID).
		Int64("alert_id", created.ID).
		Str("market_id", market.ID).
		Float64("threshold", threshold).
		Str("direction", direction).
		Msg("Alert created")
	return created, market, nil
}

// List returns the user's active alerts.
func (s *AlertService) List(ctx context.Context, userID int64) ([]*model.Alert, error) {
	alerts, err := s.alerts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Cancel deletes one of the user's alerts.
func (s *AlertService) Cancel(ctx context.Context, userID, alertID int64) error {
	if err := s.alerts.Delete(ctx, userID, alertID); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return err
		}
		return fmt.Errorf("failed to cancel alert: %w", err)
	}
	return nil
}

// FreeLimit returns the active alert cap for free users.
func (s *AlertService) FreeLimit() int {
	return s.freeLimit
}
