package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"polypulse/internal/model"
)

// premiumJoin restricts a query over a preference table aliased p to users
// with premium access at $1.
const premiumJoin = `
	JOIN users u ON u.id = p.user_id
	AND (
		(u.subscription_status = 'premium' AND (u.premium_expires_at IS NULL OR u.premium_expires_at > $1))
		OR (u.subscription_status IN ('trial', 'cancelled') AND u.premium_expires_at > $1)
	)`

// WhaleRepository handles whale preferences and the whale event log.
type WhaleRepository struct {
	pool *pgxpool.Pool
}

// NewWhaleRepository creates a new WhaleRepository instance.
func NewWhaleRepository(pool *pgxpool.Pool) *WhaleRepository {
	return &WhaleRepository{pool: pool}
}

// GetPreference returns the user's whale preference, or nil if none is stored.
func (r *WhaleRepository) GetPreference(ctx context.Context, userID int64) (*model.WhalePreference, error) {
	var p model.WhalePreference
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, chat_id, enabled, min_usd, daily_sent, last_sent_at
		FROM whale_preferences WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.ChatID, &p.Enabled, &p.MinUSD, &p.DailySent, &p.LastSentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get whale preference: %w", err)
	}
	return &p, nil
}

// UpsertPreference stores enabled and min_usd, keeping the counters.
func (r *WhaleRepository) UpsertPreference(ctx context.Context, p *model.WhalePreference) error {
	const query = `
		INSERT INTO whale_preferences (user_id, chat_id, enabled, min_usd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET chat_id = EXCLUDED.chat_id, enabled = EXCLUDED.enabled, min_usd = EXCLUDED.min_usd
	`
	if _, err := r.pool.Exec(ctx, query, p.UserID, p.ChatID, p.Enabled, p.MinUSD); err != nil {
		return fmt.Errorf("failed to upsert whale preference: %w", err)
	}
	return nil
}

// ListSubscribers returns enabled premium subscribers whose minimum is at
// most amountUSD.
func (r *WhaleRepository) ListSubscribers(ctx context.Context, amountUSD float64, now time.Time) ([]*model.WhalePreference, error) {
	query := `
		SELECT p.user_id, p.chat_id, p.enabled, p.min_usd, p.daily_sent, p.last_sent_at
		FROM whale_preferences p` + premiumJoin + `
		WHERE p.enabled AND p.min_usd <= $2
		ORDER BY p.user_id`

	rows, err := r.pool.Query(ctx, query, now, amountUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to list whale subscribers: %w", err)
	}
	defer rows.Close()

	var prefs []*model.WhalePreference
	for rows.Next() {
		var p model.WhalePreference
		if err := rows.Scan(&p.UserID, &p.ChatID, &p.Enabled, &p.MinUSD, &p.DailySent, &p.LastSentAt); err != nil {
			return nil, fmt.Errorf("failed to scan whale preference: %w", err)
		}
		prefs = append(prefs, &p)
	}
	return prefs, rows.Err()
}

// RecordSent bumps the daily counter, resetting it on a new UTC day.
func (r *WhaleRepository) RecordSent(ctx context.Context, userID int64, now time.Time) error {
	const query = `
		UPDATE whale_preferences
		SET daily_sent = CASE
				WHEN last_sent_at IS NOT NULL
					AND (last_sent_at AT TIME ZONE 'UTC')::date = ($2::timestamptz AT TIME ZONE 'UTC')::date
				THEN daily_sent + 1
				ELSE 1
			END,
			last_sent_at = $2
		WHERE user_id = $1
	`
	if _, err := r.pool.Exec(ctx, query, userID, now); err != nil {
		return fmt.Errorf("failed to record whale send: %w", err)
	}
	return nil
}

// InsertEvent appends a whale event.
func (r *WhaleRepository) InsertEvent(ctx context.Context, e *model.WhaleEvent) (*model.WhaleEvent, error) {
	const query = `
		INSERT INTO whale_events (market_id, market_title, market_slug, amount_usd, side, odds_before, odds_after, wallet, tx_hash, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	out := *e
	err := r.pool.QueryRow(ctx, query,
		e.MarketID, e.MarketTitle, e.MarketSlug, e.AmountUSD, e.Side,
		e.OddsBefore, e.OddsAfter, e.Wallet, e.TxHash, e.DetectedAt,
	).Scan(&out.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert whale event: %w", err)
	}
	return &out, nil
}

// LastEventForMarket returns the most recent whale event of a market, or nil.
func (r *WhaleRepository) LastEventForMarket(ctx context.Context, marketID string) (*model.WhaleEvent, error) {
	events, err := r.queryEvents(ctx, `
		SELECT id, market_id, market_title, market_slug, amount_usd, side, odds_before, odds_after, wallet, tx_hash, detected_at
		FROM whale_events WHERE market_id = $1
		ORDER BY detected_at DESC, id DESC LIMIT 1`, marketID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

// Recent returns the largest whale events detected since the given time.
func (r *WhaleRepository) Recent(ctx context.Context, since time.Time, limit int) ([]*model.WhaleEvent, error) {
	return r.queryEvents(ctx, `
		SELECT id, market_id, market_title, market_slug, amount_usd, side, odds_before, odds_after, wallet, tx_hash, detected_at
		FROM whale_events WHERE detected_at >= $1
		ORDER BY amount_usd DESC LIMIT $2`, since, limit)
}

func (r *WhaleRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*model.WhaleEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query whale events: %w", err)
	}
	defer rows.Close()

	var events []*model.WhaleEvent
	for rows.Next() {
		var e model.WhaleEvent
		if err := rows.Scan(&e.ID, &e.MarketID, &e.MarketTitle, &e.MarketSlug, &e.AmountUSD, &e.Side,
			&e.OddsBefore, &e.OddsAfter, &e.Wallet, &e.TxHash, &e.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan whale event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// MarketStats aggregates a market's whale events since the given time.
func (r *WhaleRepository) MarketStats(ctx context.Context, marketID string, since time.Time) (*model.MarketWhaleStats, error) {
	stats := model.MarketWhaleStats{MarketID: marketID}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount_usd), 0),
			COALESCE(SUM(amount_usd) FILTER (WHERE side = 'YES'), 0),
			COALESCE(SUM(amount_usd) FILTER (WHERE side = 'NO'), 0)
		FROM whale_events WHERE market_id = $1 AND detected_at >= $2`, marketID, since,
	).Scan(&stats.Count, &stats.TotalUSD, &stats.YesUSD, &stats.NoUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to get market whale stats: %w", err)
	}
	return &stats, nil
}
