// Package model defines the data models for the PolyPulse bot.
package model

import (
	"encoding/json"
	"time"
)

// Subscription statuses. Statuses are overwritten directly, there is no
// transition validation.
const (
	StatusFree      = "free"
	StatusPremium   = "premium"
	StatusCancelled = "cancelled"
	StatusTrial     = "trial"
)

// Alert directions.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// Trade sides as presented to users.
const (
	SideYes = "YES"
	SideNo  = "NO"
)

// Smart alert types.
const (
	SmartVolumeSpike = "volume_spike"
	SmartMomentum    = "momentum"
	SmartNewMarket   = "new_market"
)

// SmartAlertTypes lists every smart alert type.
func SmartAlertTypes() []string {
	return []string{SmartVolumeSpike, SmartMomentum, SmartNewMarket}
}

// User is one end user of the bot.
type User struct {
	ID                   int64      `db:"id"`
	TelegramID           int64      `db:"telegram_id"`
	Username             string     `db:"username"`
	SubscriptionStatus   string     `db:"subscription_status"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id"`
	PremiumExpiresAt     *time.Time `db:"premium_expires_at"`
	TrialStep            int        `db:"trial_step"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// IsPremium reports whether the user has access to premium commands at now.
// Trial and cancelled users keep access until their expiry.
func (u *User) IsPremium(now time.Time) bool {
	switch u.SubscriptionStatus {
	case StatusPremium:
		return u.PremiumExpiresAt == nil || now.Before(*u.PremiumExpiresAt)
	case StatusTrial, StatusCancelled:
		return u.PremiumExpiresAt != nil && now.Before(*u.PremiumExpiresAt)
	default:
		return false
	}
}

// Alert is a price alert on a single market.
type Alert struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	ChatID     int64     `db:"chat_id"`
	MarketID   string    `db:"market_id"`
	MarketName string    `db:"market_name"`
	Threshold  float64   `db:"threshold"`
	Direction  string    `db:"direction"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`

	// TriggeredAt is set when the alert engine deactivates the alert.
	TriggeredAt *time.Time `db:"triggered_at"`
}

// Triggered reports whether price satisfies the alert condition.
func (a *Alert) Triggered(price float64) bool {
	if a.Direction == DirectionBelow {
		return price <= a.Threshold
	}
	return price >= a.Threshold
}

// WatchlistItem is a market on a user's watchlist.
type WatchlistItem struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	MarketID   string    `db:"market_id"`
	MarketName string    `db:"market_name"`
	PriceAtAdd float64   `db:"price_at_add"`
	CreatedAt  time.Time `db:"created_at"`
}

// Position is a manually entered holding.
type Position struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	MarketID   string    `db:"market_id"`
	MarketName string    `db:"market_name"`
	Side       string    `db:"side"`
	Shares     float64   `db:"shares"`
	EntryPrice float64   `db:"entry_price"`
	CreatedAt  time.Time `db:"created_at"`
}

// WhalePreference is a user's filter for whale notifications.
type WhalePreference struct {
	UserID     int64      `db:"user_id"`
	ChatID     int64      `db:"chat_id"`
	Enabled    bool       `db:"enabled"`
	MinUSD     float64    `db:"min_usd"`
	DailySent  int        `db:"daily_sent"`
	LastSentAt *time.Time `db:"last_sent_at"`
}

// WhaleEvent is a detected large trade. The log is append-only.
type WhaleEvent struct {
	ID          int64     `db:"id"`
	MarketID    string    `db:"market_id"`
	MarketTitle string    `db:"market_title"`
	MarketSlug  string    `db:"market_slug"`
	AmountUSD   float64   `db:"amount_usd"`
	Side        string    `db:"side"`
	OddsBefore  *float64  `db:"odds_before"`
	OddsAfter   float64   `db:"odds_after"`
	Wallet      string    `db:"wallet"`
	TxHash      string    `db:"tx_hash"`
	DetectedAt  time.Time `db:"detected_at"`
}

// MarketWhaleStats aggregates whale events for one market.
type MarketWhaleStats struct {
	MarketID string
	Count    int
	TotalUSD float64
	YesUSD   float64
	NoUSD    float64
}

// SmartAlertPreference is one (user, type) subscription.
type SmartAlertPreference struct {
	UserID    int64           `db:"user_id"`
	ChatID    int64           `db:"chat_id"`
	AlertType string          `db:"alert_type"`
	Enabled   bool            `db:"enabled"`
	Params    json.RawMessage `db:"params"`
}

// SmartParams is the decoded params column.
type SmartParams struct {
	Categories []string `json:"categories,omitempty"`
}

// DecodeParams decodes the params column, tolerating empty or malformed input.
func (p *SmartAlertPreference) DecodeParams() SmartParams {
	var out SmartParams
	if len(p.Params) == 0 {
		return out
	}
	_ = json.Unmarshal(p.Params, &out)
	return out
}

// SmartAlertHistory records a fired smart alert.
type SmartAlertHistory struct {
	ID        int64           `db:"id"`
	UserID    int64           `db:"user_id"`
	AlertType string          `db:"alert_type"`
	MarketID  string          `db:"market_id"`
	FiredAt   time.Time       `db:"fired_at"`
	Detail    json.RawMessage `db:"detail"`
}

// VolumeSnapshot is one point of a market's volume/price time series.
// Price is nil when the market had no quoted YES price.
type VolumeSnapshot struct {
	ID         int64     `db:"id"`
	MarketID   string    `db:"market_id"`
	Volume     float64   `db:"volume"`
	Price      *float64  `db:"price"`
	CapturedAt time.Time `db:"captured_at"`
}

// BriefingPreference drives the hourly briefing selection.
type BriefingPreference struct {
	UserID         int64      `db:"user_id"`
	ChatID         int64      `db:"chat_id"`
	Enabled        bool       `db:"enabled"`
	Timezone       string     `db:"timezone"`
	SendHour       int        `db:"send_hour"`
	CategoryFilter []string   `db:"category_filter"`
	LastSentAt     *time.Time `db:"last_sent_at"`
}

// CategorySubscription is a user's followed category.
type CategorySubscription struct {
	UserID    int64     `db:"user_id"`
	Category  string    `db:"category"`
	CreatedAt time.Time `db:"created_at"`
}

// Prediction is a user's call on a market outcome.
type Prediction struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	MarketID   string    `db:"market_id"`
	MarketName string    `db:"market_name"`
	Side       string    `db:"side"`
	Odds       float64   `db:"odds"`
	Correct    *bool     `db:"correct"`
	CreatedAt  time.Time `db:"created_at"`
}

// LeaderboardEntry is a user's prediction record.
type LeaderboardEntry struct {
	UserID   int64   `db:"user_id"`
	Username string  `db:"username"`
	Total    int     `db:"total"`
	Correct  int     `db:"correct"`
	Accuracy float64 `db:"accuracy"`
}

// SentToday returns the daily counter, treating a counter from a previous
// UTC day as zero.
func (p *WhalePreference) SentToday(now time.Time) int {
	if p.LastSentAt == nil {
		return 0
	}
	ly, lm, ld := p.LastSentAt.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	if ly != ny || lm != nm || ld != nd {
		return 0
	}
	return p.DailySent
}
