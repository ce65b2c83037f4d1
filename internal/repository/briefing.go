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

const briefingColumns = `user_id, chat_id, enabled, timezone, send_hour, category_filter, last_sent_at`

// BriefingRepository handles daily briefing preferences.
type BriefingRepository struct {
	pool *pgxpool.Pool
}

// NewBriefingRepository creates a new BriefingRepository instance.
func NewBriefingRepository(pool *pgxpool.Pool) *BriefingRepository {
	return &BriefingRepository{pool: pool}
}

func scanBriefing(row pgx.Row) (*model.BriefingPreference, error) {
	var p model.BriefingPreference
	if err := row.Scan(&p.UserID, &p.ChatID, &p.Enabled, &p.Timezone, &p.SendHour, &p.CategoryFilter, &p.LastSentAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the user's briefing preference, or nil.
func (r *BriefingRepository) Get(ctx context.Context, userID int64) (*model.BriefingPreference, error) {
	p, err := scanBriefing(r.pool.QueryRow(ctx, `SELECT `+briefingColumns+` FROM briefing_preferences WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get briefing preference: %w", err)
	}
	return p, nil
}

// Upsert stores the preference, keeping last_sent_at.
func (r *BriefingRepository) Upsert(ctx context.Context, p *model.BriefingPreference) error {
	filter := p.CategoryFilter
	if filter == nil {
		filter = []string{}
	}
	const query = `
		INSERT INTO briefing_preferences (user_id, chat_id, enabled, timezone, send_hour, category_filter)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET chat_id = EXCLUDED.chat_id,
			enabled = EXCLUDED.enabled,
			timezone = EXCLUDED.timezone,
			send_hour = EXCLUDED.send_hour,
			category_filter = EXCLUDED.category_filter
	`
	if _, err := r.pool.Exec(ctx, query, p.UserID, p.ChatID, p.Enabled, p.Timezone, p.SendHour, filter); err != nil {
		return fmt.Errorf("failed to upsert briefing preference: %w", err)
	}
	return nil
}

// ListDue returns enabled premium preferences whose local hour at now equals
// their send hour and that were not sent in the last 20 hours.
func (r *BriefingRepository) ListDue(ctx context.Context, now time.Time) ([]*model.BriefingPreference, error) {
	query := `
		SELECT p.user_id, p.chat_id, p.enabled, p.timezone, p.send_hour, p.category_filter, p.last_sent_at
		FROM briefing_preferences p` + premiumJoin + `
		WHERE p.enabled
			AND EXTRACT(HOUR FROM ($1::timestamptz AT TIME ZONE p.timezone)) = p.send_hour
			AND (p.last_sent_at IS NULL OR p.last_sent_at < $1::timestamptz - INTERVAL '20 hours')
		ORDER BY p.user_id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due briefings: %w", err)
	}
	defer rows.Close()

	var prefs []*model.BriefingPreference
	for rows.Next() {
		p, err := scanBriefing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan briefing preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// MarkSent stamps last_sent_at.
func (r *BriefingRepository) MarkSent(ctx context.Context, userID int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE briefing_preferences SET last_sent_at = $2 WHERE user_id = $1`, userID, at); err != nil {
		return fmt.Errorf("failed to mark briefing sent: %w", err)
	}
	return nil
}
