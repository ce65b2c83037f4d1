package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"polypulse/internal/model"
	"polypulse/internal/notify"
)

// DripStore is the user persistence the drip job needs.
type DripStore interface {
	ListTrialUsers(ctx context.Context) ([]*model.User, error)
	AdvanceTrialStep(ctx context.Context, id int64, step int) error
	SetStatus(ctx context.Context, id int64, status string) error
}

// DripStep is one onboarding message, sent Day days after signup.
type DripStep struct {
	Day  int
	Text string
}

// DripSteps is the onboarding sequence. The last step ends the trial.
var DripSteps = []DripStep{
	{Day: 1, Text: "👋 *Day 1 tip*\n\nSet your first price alert: `/alert bitcoin 70%`.\nUse /trending to see where the money is moving."},
	{Day: 3, Text: "🐋 *Follow the whales*\n\nTurn on whale alerts with /whales on to see every trade above $10K as it lands."},
	{Day: 5, Text: "📊 *Smart alerts*\n\nGet told about volume spikes, sharp moves and new markets: `/smart momentum on`."},
	{Day: 6, Text: "⏳ *Your trial ends tomorrow*\n\nKeep whale alerts, briefings and smart alerts with /upgrade."},
	{Day: 7, Text: "Your PolyPulse trial has ended. Price alerts keep working on the free plan.\n\nUpgrade any time with /upgrade."},
}

// NextDripStep returns the index of the step due for a user who has
// received step steps and signed up at createdAt, or -1.
func NextDripStep(step int, createdAt, now time.Time) int {
	if step < 0 || step >= len(DripSteps) {
		return -1
	}
	if now.Sub(createdAt) < time.Duration(DripSteps[step].Day)*24*time.Hour {
		return -1
	}
	return step
}

// DripService sends the onboarding sequence to trial users.
type DripService struct {
	users    DripStore
	notifier notify.Notifier
	now      func() time.Time
}

// NewDripService creates a new DripService instance.
func NewDripService(users DripStore, notifier notify.Notifier) *DripService {
	return &DripService{users: users, notifier: notifier, now: time.Now}
}

// Run advances every trial user by at most one step. A user whose final
// step is sent is moved to the free plan.
func (s *DripService) Run(ctx context.Context) error {
	users, err := s.users.ListTrialUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list trial users: %w", err)
	}

	now := s.now()
	sent := 0
	for _, u := range users {
		idx := NextDripStep(u.TrialStep, u.CreatedAt, now)
		if idx < 0 {
			continue
		}
		if err := s.notifier.Send(ctx, u.TelegramID, DripSteps[idx].Text); err != nil {
			log.Warn().Err(err).Int64("user_id", u.ID).Int("step", idx).Msg("Failed to send drip message")
		}
		if err := s.users.AdvanceTrialStep(ctx, u.ID, idx+1); err != nil {
			log.Warn().Err(err).Int64("user_id", u.ID).Msg("Failed to advance trial step")
			continue
		}
		sent++

		if idx == len(DripSteps)-1 && u.SubscriptionStatus == model.StatusTrial {
			if err := s.users.SetStatus(ctx, u.ID, model.StatusFree); err != nil {
				log.Warn().Err(err).Int64("user_id", u.ID).Msg("Failed to end trial")
				continue
			}
			log.Info().Int64("user_id", u.ID).Msg("Trial ended")
		}
	}

	log.Debug().Int("trial_users", len(users)).Int("sent", sent).Msg("Drip run complete")
	return nil
}
