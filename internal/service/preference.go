package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"polypulse/internal/model"
	"polypulse/internal/monitor"
)

// WhalePrefRepo is the whale preference persistence.
type WhalePrefRepo interface {
	GetPreference(ctx context.Context, userID int64) (*model.WhalePreference, error)
	UpsertPreference(ctx context.Context, p *model.WhalePreference) error
}

// SmartPrefRepo is the smart alert preference persistence.
type SmartPrefRepo interface {
	GetPreferences(ctx context.Context, userID int64) ([]*model.SmartAlertPreference, error)
	UpsertPreference(ctx context.Context, p *model.SmartAlertPreference) error
}

// BriefingPrefRepo is the briefing preference persistence.
type BriefingPrefRepo interface {
	Get(ctx context.Context, userID int64) (*model.BriefingPreference, error)
	Upsert(ctx context.Context, p *model.BriefingPreference) error
}

// CategoryRepo is the category subscription persistence.
type CategoryRepo interface {
	Subscribe(ctx context.Context, userID int64, category string) error
	Unsubscribe(ctx context.Context, userID int64, category string) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]string, error)
}

// PreferenceService stores per-user notification settings.
type PreferenceService struct {
	whales      WhalePrefRepo
	smart       SmartPrefRepo
	briefings   BriefingPrefRepo
	categories  CategoryRepo
	defaultMin  float64
	defaultHour int
	defaultTZ   string
}

// PreferenceDefaults are applied when a user has no stored preference.
type PreferenceDefaults struct {
	WhaleMinUSD      float64
	BriefingHour     int
	BriefingTimezone string
}

// NewPreferenceService creates a new PreferenceService instance.
func NewPreferenceService(whales WhalePrefRepo, smart SmartPrefRepo, briefings BriefingPrefRepo, categories CategoryRepo, defaults PreferenceDefaults) *PreferenceService {
	if defaults.WhaleMinUSD <= 0 {
		defaults.WhaleMinUSD = 10000
	}
	if defaults.BriefingTimezone == "" {
		defaults.BriefingTimezone = "UTC"
	}
	return &PreferenceService{
		whales:      whales,
		smart:       smart,
		briefings:   briefings,
		categories:  categories,
		defaultMin:  defaults.WhaleMinUSD,
		defaultHour: defaults.BriefingHour,
		defaultTZ:   defaults.BriefingTimezone,
	}
}

// Whale returns the user's whale preference, or the disabled default.
func (s *PreferenceService) Whale(ctx context.Context, userID, chatID int64) (*model.WhalePreference, error) {
	p, err := s.whales.GetPreference(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &model.WhalePreference{UserID: userID, ChatID: chatID, MinUSD: s.defaultMin}
	}
	return p, nil
}

// SetWhale enables or disables whale alerts. A positive minUSD replaces the
// stored minimum and implies enabled.
func (s *PreferenceService) SetWhale(ctx context.Context, userID, chatID int64, enabled bool, minUSD float64) (*model.WhalePreference, error) {
	if minUSD < 0 {
		return nil, ErrInvalidAmount
	}
	p, err := s.Whale(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	p.ChatID = chatID
	p.Enabled = enabled
	if minUSD > 0 {
		p.MinUSD = minUSD
		p.Enabled = true
	}
	if err := s.whales.UpsertPreference(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Briefing returns the user's briefing preference, or the disabled default.
func (s *PreferenceService) Briefing(ctx context.Context, userID, chatID int64) (*model.BriefingPreference, error) {
	p, err := s.briefings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &model.BriefingPreference{UserID: userID, ChatID: chatID, Timezone: s.defaultTZ, SendHour: s.defaultHour}
	}
	return p, nil
}

// BriefingUpdate changes a briefing preference. Nil fields are kept.
type BriefingUpdate struct {
	Enabled  *bool
	Hour     *int
	Timezone *string
	Filter   []string
}

// SetBriefing applies an update. Setting an hour implies enabled.
func (s *PreferenceService) SetBriefing(ctx context.Context, userID, chatID int64, upd BriefingUpdate) (*model.BriefingPreference, error) {
	p, err := s.Briefing(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	p.ChatID = chatID
	if upd.Hour != nil {
		if *upd.Hour < 0 || *upd.Hour > 23 {
			return nil, ErrInvalidHour
		}
		p.SendHour = *upd.Hour
		p.Enabled = true
	}
	if upd.Timezone != nil {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil {
			return nil, ErrInvalidTimezone
		}
		p.Timezone = *upd.Timezone
	}
	if upd.Enabled != nil {
		p.Enabled = *upd.Enabled
	}
	if upd.Filter != nil {
		filter, err := normalizeCategories(upd.Filter)
		if err != nil {
			return nil, err
		}
		p.CategoryFilter = filter
	}
	if err := s.briefings.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Smart returns the user's smart alert subscriptions keyed by type. Types
// without a row are reported disabled.
func (s *PreferenceService) Smart(ctx context.Context, userID, chatID int64) (map[string]*model.SmartAlertPreference, error) {
	prefs, err := s.smart.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.SmartAlertPreference, len(model.SmartAlertTypes()))
	for _, t := range model.SmartAlertTypes() {
		out[t] = &model.SmartAlertPreference{UserID: userID, ChatID: chatID, AlertType: t}
	}
	for _, p := range prefs {
		out[p.AlertType] = p
	}
	return out, nil
}

// ParseSmartType maps user input to a smart alert type.
func ParseSmartType(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "volume", "spike", "volume_spike", "volumespike":
		return model.SmartVolumeSpike, nil
	case "momentum", "move", "moves":
		return model.SmartMomentum, nil
	case "new", "new_market", "newmarket", "markets":
		return model.SmartNewMarket, nil
	}
	return "", ErrUnknownAlertType
}

// SetSmart enables or disables one smart alert type. Categories only apply
// to new market alerts.
func (s *PreferenceService) SetSmart(ctx context.Context, userID, chatID int64, alertType string, enabled bool, categories []string) (*model.SmartAlertPreference, error) {
	alertType, err := ParseSmartType(alertType)
	if err != nil {
		return nil, err
	}
	cats, err := normalizeCategories(categories)
	if err != nil {
		return nil, err
	}
	params, err := json.Marshal(model.SmartParams{Categories: cats})
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	p := &model.SmartAlertPreference{UserID: userID, ChatID: chatID, AlertType: alertType, Enabled: enabled, Params: params}
	if err := s.smart.UpsertPreference(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Categories lists the categories the user follows.
func (s *PreferenceService) Categories(ctx context.Context, userID int64) ([]string, error) {
	return s.categories.ListByUser(ctx, userID)
}

// FollowCategory adds a category.
func (s *PreferenceService) FollowCategory(ctx context.Context, userID int64, category string) (string, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if !monitor.IsCategory(category) {
		return "", ErrUnknownCategory
	}
	return category, s.categories.Subscribe(ctx, userID, category)
}

// UnfollowCategory removes a category. The bool reports whether it was
// followed.
func (s *PreferenceService) UnfollowCategory(ctx context.Context, userID int64, category string) (bool, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if !monitor.IsCategory(category) {
		return false, ErrUnknownCategory
	}
	return s.categories.Unsubscribe(ctx, userID, category)
}

func normalizeCategories(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		if !monitor.IsCategory(c) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, c)
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
