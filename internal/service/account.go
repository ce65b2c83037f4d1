package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"polypulse/internal/model"
)

// UserStore is the user persistence AccountService needs.
type UserStore interface {
	GetOrCreate(ctx context.Context, telegramID int64, username, status string, expiresAt *time.Time) (*model.User, bool, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	UpdateUsername(ctx context.Context, telegramID int64, username string) error
}

// AccountService handles user accounts and premium access.
type AccountService struct {
	users     UserStore
	trialDays int
	now       func() time.Time
}

// NewAccountService creates a new AccountService instance. New users start
// a trial of trialDays days.
func NewAccountService(users UserStore, trialDays int) *AccountService {
	if trialDays <= 0 {
		trialDays = 7
	}
	return &AccountService{users: users, trialDays: trialDays, now: time.Now}
}

// EnsureUser ensures a user exists, starting a trial for new users.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	expires := s.now().Add(time.Duration(s.trialDays) * 24 * time.Hour)
	user, created, err := s.users.GetOrCreate(ctx, telegramID, username, model.StatusTrial, &expires)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && user.Username != username && username != "" {
		if err := s.users.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("telegram_id", telegramID).Msg("Failed to update username")
		}
		user.Username = username
	}
	if created {
		log.Info().Int64("telegram_id", telegramID).Time("trial_expires", expires).Msg("User created")
	}
	return user, created, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.users.GetByTelegramID(ctx, telegramID)
}

// IsPremium reports whether the user currently has premium access.
func (s *AccountService) IsPremium(user *model.User) bool {
	return user.IsPremium(s.now())
}

// TrialDaysLeft returns the whole days left on a trial, or 0.
func (s *AccountService) TrialDaysLeft(user *model.User) int {
	if user.SubscriptionStatus != model.StatusTrial || user.PremiumExpiresAt == nil {
		return 0
	}
	left := user.PremiumExpiresAt.Sub(s.now())
	if left <= 0 {
		return 0
	}
	return int((left + 24*time.Hour - 1) / (24 * time.Hour))
}
