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

// ErrAlertNotFound is returned when an alert does not exist or belongs to
// another user.
var ErrAlertNotFound = errors.New("alert not found")

const alertColumns = `id, user_id, chat_id, market_id, market_name, threshold, direction, active, created_at, triggered_at`

// AlertRepository handles price alert persistence.
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new AlertRepository instance.
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

func scanAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.ChatID,
		&a.MarketID,
		&a.MarketName,
		&a.Threshold,
		&a.Direction,
		&a.Active,
		&a.CreatedAt,
		&a.TriggeredAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AlertRepository) list(ctx context.Context, query string, args ...any) ([]*model.Alert, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// Create inserts an active alert.
func (r *AlertRepository) Create(ctx context.Context, a *model.Alert) (*model.Alert, error) {
	query := `
		INSERT INTO alerts (user_id, chat_id, market_id, market_name, threshold, direction)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + alertColumns

	created, err := scanAlert(r.pool.QueryRow(ctx, query, a.UserID, a.ChatID, a.MarketID, a.MarketName, a.Threshold, a.Direction))
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return created, nil
}

// ListActive returns every active alert.
func (r *AlertRepository) ListActive(ctx context.Context) ([]*model.Alert, error) {
	return r.list(ctx, `SELECT `+alertColumns+` FROM alerts WHERE active ORDER BY id`)
}

// ListByUser returns a user's active alerts.
func (r *AlertRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Alert, error) {
	return r.list(ctx, `SELECT `+alertColumns+` FROM alerts WHERE user_id = $1 AND active ORDER BY id`, userID)
}

// ListTriggeredSince returns a user's alerts deactivated after since.
func (r *AlertRepository) ListTriggeredSince(ctx context.Context, userID int64, since time.Time) ([]*model.Alert, error) {
	return r.list(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE user_id = $1 AND NOT active AND triggered_at >= $2
		ORDER BY triggered_at DESC`, userID, since)
}

// CountActiveByUser counts a user's active alerts.
func (r *AlertRepository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE user_id = $1 AND active`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// Deactivate marks a triggered alert inactive. The row is kept.
func (r *AlertRepository) Deactivate(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `UPDATE alerts SET active = FALSE, triggered_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate alert: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Delete removes one of the user's alerts.
func (r *AlertRepository) Delete(ctx context.Context, userID, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}
