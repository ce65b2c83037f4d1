package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

// migrations are applied in order on every start; each statement is idempotent.
var migrations = []migration{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			telegram_id BIGINT NOT NULL UNIQUE,
			username VARCHAR(255) NOT NULL DEFAULT '',
			subscription_status VARCHAR(20) NOT NULL DEFAULT 'free',
			stripe_customer_id TEXT,
			stripe_subscription_id TEXT,
			premium_expires_at TIMESTAMPTZ,
			trial_step INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_stripe_customer ON users(stripe_customer_id);
		CREATE INDEX IF NOT EXISTS idx_users_status ON users(subscription_status);
	`},
	{"alerts", `
		CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			chat_id BIGINT NOT NULL,
			market_id TEXT NOT NULL,
			market_name TEXT NOT NULL,
			threshold DOUBLE PRECISION NOT NULL CHECK (threshold >= 0 AND threshold <= 1),
			direction VARCHAR(5) NOT NULL CHECK (direction IN ('above', 'below')),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			triggered_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active) WHERE active;
		CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id);
	`},
	{"watchlist", `
		CREATE TABLE IF NOT EXISTS watchlist (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			market_id TEXT NOT NULL,
			market_name TEXT NOT NULL,
			price_at_add DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_watchlist_user ON watchlist(user_id);
	`},
	{"positions", `
		CREATE TABLE IF NOT EXISTS positions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			market_id TEXT NOT NULL,
			market_name TEXT NOT NULL,
			side VARCHAR(3) NOT NULL,
			shares DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id);
	`},
	{"whale", `
		CREATE TABLE IF NOT EXISTS whale_preferences (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			chat_id BIGINT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			min_usd DOUBLE PRECISION NOT NULL DEFAULT 10000,
			daily_sent INT NOT NULL DEFAULT 0,
			last_sent_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS whale_events (
			id BIGSERIAL PRIMARY KEY,
			market_id TEXT NOT NULL,
			market_title TEXT NOT NULL,
			market_slug TEXT NOT NULL DEFAULT '',
			amount_usd DOUBLE PRECISION NOT NULL,
			side VARCHAR(3) NOT NULL,
			odds_before DOUBLE PRECISION,
			odds_after DOUBLE PRECISION NOT NULL,
			wallet TEXT NOT NULL DEFAULT '',
			tx_hash TEXT NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_whale_events_market_time ON whale_events(market_id, detected_at DESC);
		CREATE INDEX IF NOT EXISTS idx_whale_events_time ON whale_events(detected_at DESC);
	`},
	{"smart_alerts", `
		CREATE TABLE IF NOT EXISTS smart_alert_preferences (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			chat_id BIGINT NOT NULL,
			alert_type VARCHAR(20) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			params JSONB NOT NULL DEFAULT '{}',
			PRIMARY KEY (user_id, alert_type)
		);
		CREATE TABLE IF NOT EXISTS smart_alert_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			alert_type VARCHAR(20) NOT NULL,
			market_id TEXT NOT NULL,
			fired_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			detail JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_smart_history_lookup ON smart_alert_history(user_id, alert_type, market_id, fired_at DESC);
		CREATE TABLE IF NOT EXISTS volume_snapshots (
			id BIGSERIAL PRIMARY KEY,
			market_id TEXT NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION,
			captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		ALTER TABLE volume_snapshots ALTER COLUMN price DROP NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_volume_snapshots_market_time ON volume_snapshots(market_id, captured_at);
	`},
	{"briefing", `
		CREATE TABLE IF NOT EXISTS briefing_preferences (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			chat_id BIGINT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			send_hour INT NOT NULL DEFAULT 8 CHECK (send_hour >= 0 AND send_hour <= 23),
			category_filter TEXT[] NOT NULL DEFAULT '{}',
			last_sent_at TIMESTAMPTZ
		);
	`},
	{"categories_predictions", `
		CREATE TABLE IF NOT EXISTS category_subscriptions (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category VARCHAR(50) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, category)
		);
		CREATE TABLE IF NOT EXISTS predictions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			market_id TEXT NOT NULL,
			market_name TEXT NOT NULL,
			side VARCHAR(3) NOT NULL,
			odds DOUBLE PRECISION NOT NULL,
			correct BOOLEAN,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, market_id)
		);
		CREATE INDEX IF NOT EXISTS idx_predictions_market ON predictions(market_id);
	`},
	{"prediction_leaderboard_view", `
		CREATE OR REPLACE VIEW prediction_leaderboard AS
		SELECT
			p.user_id,
			u.username,
			COUNT(*) FILTER (WHERE p.correct IS NOT NULL) AS total,
			COUNT(*) FILTER (WHERE p.correct) AS correct
		FROM predictions p
		JOIN users u ON u.id = p.user_id
		GROUP BY p.user_id, u.username;
	`},
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
