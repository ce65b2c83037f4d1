package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"polypulse/internal/model"
)

// SmartRepository handles smart alert preferences, history and the volume
// snapshot series.
type SmartRepository struct {
	pool *pgxpool.Pool
}

// NewSmartRepository creates a new SmartRepository instance.
func NewSmartRepository(pool *pgxpool.Pool) *SmartRepository {
	return &SmartRepository{pool: pool}
}

func (r *SmartRepository) listPreferences(ctx context.Context, query string, args ...any) ([]*model.SmartAlertPreference, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query smart preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*model.SmartAlertPreference
	for rows.Next() {
		var p model.SmartAlertPreference
		if err := rows.Scan(&p.UserID, &p.ChatID, &p.AlertType, &p.Enabled, &p.Params); err != nil {
			return nil, fmt.Errorf("failed to scan smart preference: %w", err)
		}
		prefs = append(prefs, &p)
	}
	return prefs, rows.Err()
}

// GetPreferences returns every smart alert preference of a user.
func (r *SmartRepository) GetPreferences(ctx context.Context, userID int64) ([]*model.SmartAlertPreference, error) {
	return r.listPreferences(ctx, `
		SELECT user_id, chat_id, alert_type, enabled, params
		FROM smart_alert_preferences WHERE user_id = $1 ORDER BY alert_type`, userID)
}

// UpsertPreference stores one (user, type) preference.
func (r *SmartRepository) UpsertPreference(ctx context.Context, p *model.SmartAlertPreference) error {
	params := p.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	const query = `
		INSERT INTO smart_alert_preferences (user_id, chat_id, alert_type, enabled, params)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, alert_type) DO UPDATE
		SET chat_id = EXCLUDED.chat_id, enabled = EXCLUDED.enabled, params = EXCLUDED.params
	`
	if _, err := r.pool.Exec(ctx, query, p.UserID, p.ChatID, p.AlertType, p.Enabled, params); err != nil {
		return fmt.Errorf("failed to upsert smart preference: %w", err)
	}
	return nil
}

// ListSubscribers returns enabled premium subscribers of one alert type.
func (r *SmartRepository) ListSubscribers(ctx context.Context, alertType string, now time.Time) ([]*model.SmartAlertPreference, error) {
	return r.listPreferences(ctx, `
		SELECT p.user_id, p.chat_id, p.alert_type, p.enabled, p.params
		FROM smart_alert_preferences p`+premiumJoin+`
		WHERE p.enabled AND p.alert_type = $2
		ORDER BY p.user_id`, now, alertType)
}

// RecordHistory appends a fired smart alert.
func (r *SmartRepository) RecordHistory(ctx context.Context, h *model.SmartAlertHistory) error {
	detail := h.Detail
	if len(detail) == 0 {
		detail = json.RawMessage(`{}`)
	}
	const query = `
		INSERT INTO smart_alert_history (user_id, alert_type, market_id, fired_at, detail)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, query, h.UserID, h.AlertType, h.MarketID, h.FiredAt, detail); err != nil {
		return fmt.Errorf("failed to record smart alert: %w", err)
	}
	return nil
}

// LastFired returns when the alert last fired for (user, type, market), or
// nil if it never did.
func (r *SmartRepository) LastFired(ctx context.Context, userID int64, alertType, marketID string) (*time.Time, error) {
	var firedAt time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT fired_at FROM smart_alert_history
		WHERE user_id = $1 AND alert_type = $2 AND market_id = $3
		ORDER BY fired_at DESC LIMIT 1`, userID, alertType, marketID,
	).Scan(&firedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last smart alert: %w", err)
	}
	return &firedAt, nil
}

// InsertSnapshot appends a volume snapshot.
func (r *SmartRepository) InsertSnapshot(ctx context.Context, s *model.VolumeSnapshot) error {
	const query = `INSERT INTO volume_snapshots (market_id, volume, price, captured_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, query, s.MarketID, s.Volume, s.Price, s.CapturedAt); err != nil {
		return fmt.Errorf("failed to insert volume snapshot: %w", err)
	}
	return nil
}

// AverageHourlyVolume returns the mean of the stored 24h volumes divided by
// 24 over snapshots captured at or after since, and the sample count.
func (r *SmartRepository) AverageHourlyVolume(ctx context.Context, marketID string, since time.Time) (float64, int, error) {
	var (
		avg float64
		n   int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(volume) / 24, 0), COUNT(*)
		FROM volume_snapshots WHERE market_id = $1 AND captured_at >= $2`, marketID, since,
	).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get average hourly volume: %w", err)
	}
	return avg, n, nil
}

// EarliestSnapshot returns the oldest priced snapshot of a market captured
// at or after since, or nil.
func (r *SmartRepository) EarliestSnapshot(ctx context.Context, marketID string, since time.Time) (*model.VolumeSnapshot, error) {
	var s model.VolumeSnapshot
	err := r.pool.QueryRow(ctx, `
		SELECT id, market_id, volume, price, captured_at FROM volume_snapshots
		WHERE market_id = $1 AND captured_at >= $2 AND price IS NOT NULL
		ORDER BY captured_at ASC LIMIT 1`, marketID, since,
	).Scan(&s.ID, &s.MarketID, &s.Volume, &s.Price, &s.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get earliest snapshot: %w", err)
	}
	return &s, nil
}

// RecentPrices returns up to limit priced snapshots of a market captured at
// or after since, oldest first.
func (r *SmartRepository) RecentPrices(ctx context.Context, marketID string, since time.Time, limit int) ([]float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT price FROM (
			SELECT price, captured_at FROM volume_snapshots
			WHERE market_id = $1 AND captured_at >= $2 AND price IS NOT NULL
			ORDER BY captured_at DESC LIMIT $3
		) recent ORDER BY captured_at ASC`, marketID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent prices: %w", err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// PruneSnapshots deletes snapshots captured before the cutoff.
func (r *SmartRepository) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM volume_snapshots WHERE captured_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune volume snapshots: %w", err)
	}
	return result.RowsAffected(), nil
}
