package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"polypulse/internal/model"
)

// ErrDuplicatePrediction is returned when the user already called the market.
var ErrDuplicatePrediction = errors.New("prediction already exists")

// CategoryRepository handles followed categories.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository creates a new CategoryRepository instance.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// Subscribe follows a category. Following twice is a no-op.
func (r *CategoryRepository) Subscribe(ctx context.Context, userID int64, category string) error {
	const query = `
		INSERT INTO category_subscriptions (user_id, category) VALUES ($1, $2)
		ON CONFLICT (user_id, category) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, userID, category); err != nil {
		return fmt.Errorf("failed to subscribe category: %w", err)
	}
	return nil
}

// Unsubscribe unfollows a category and reports whether it was followed.
func (r *CategoryRepository) Unsubscribe(ctx context.Context, userID int64, category string) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM category_subscriptions WHERE user_id = $1 AND category = $2`, userID, category)
	if err != nil {
		return false, fmt.Errorf("failed to unsubscribe category: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByUser returns the user's categories alphabetically.
func (r *CategoryRepository) ListByUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT category FROM category_subscriptions WHERE user_id = $1 ORDER BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PredictionRepository handles predictions and the leaderboard view.
type PredictionRepository struct {
	pool *pgxpool.Pool
}

// NewPredictionRepository creates a new PredictionRepository instance.
func NewPredictionRepository(pool *pgxpool.Pool) *PredictionRepository {
	return &PredictionRepository{pool: pool}
}

// Create records a prediction.
func (r *PredictionRepository) Create(ctx context.Context, p *model.Prediction) error {
	const query = `
		INSERT INTO predictions (user_id, market_id, market_name, side, odds)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, query, p.UserID, p.MarketID, p.MarketName, p.Side, p.Odds); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePrediction
		}
		return fmt.Errorf("failed to create prediction: %w", err)
	}
	return nil
}

// ListByUser returns the user's predictions, newest first.
func (r *PredictionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, market_id, market_name, side, odds, correct, created_at
		FROM predictions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var out []*model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.ID, &p.UserID, &p.MarketID, &p.MarketName, &p.Side, &p.Odds, &p.Correct, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListUnresolvedMarkets returns the distinct markets with open predictions.
func (r *PredictionRepository) ListUnresolvedMarkets(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT market_id FROM predictions WHERE correct IS NULL ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved markets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan market id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Resolve marks every open prediction on the market against the winning side.
func (r *PredictionRepository) Resolve(ctx context.Context, marketID, winningSide string) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE predictions SET correct = (side = $2)
		WHERE market_id = $1 AND correct IS NULL`, marketID, winningSide)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve predictions: %w", err)
	}
	return result.RowsAffected(), nil
}

// Leaderboard returns users with at least minResolved resolved predictions,
// ranked by accuracy then volume.
func (r *PredictionRepository) Leaderboard(ctx context.Context, minResolved, limit int) ([]*model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, username, total, correct, correct::float8 / total AS accuracy
		FROM prediction_leaderboard
		WHERE total >= $1 AND total > 0
		ORDER BY accuracy DESC, total DESC, user_id
		LIMIT $2`, minResolved, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Total, &e.Correct, &e.Accuracy); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
