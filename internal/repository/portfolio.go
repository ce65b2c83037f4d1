package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"polypulse/internal/model"
)

// Errors for watchlist and position operations.
var (
	ErrWatchlistItemNotFound = errors.New("watchlist item not found")
	ErrPositionNotFound      = errors.New("position not found")
)

// WatchlistRepository handles watchlist persistence.
type WatchlistRepository struct {
	pool *pgxpool.Pool
}

// NewWatchlistRepository creates a new WatchlistRepository instance.
func NewWatchlistRepository(pool *pgxpool.Pool) *WatchlistRepository {
	return &WatchlistRepository{pool: pool}
}

// Add appends a market to the user's watchlist.
func (r *WatchlistRepository) Add(ctx context.Context, item *model.WatchlistItem) error {
	const query = `
		INSERT INTO watchlist (user_id, market_id, market_name, price_at_add)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, item.UserID, item.MarketID, item.MarketName, item.PriceAtAdd); err != nil {
		return fmt.Errorf("failed to add watchlist item: %w", err)
	}
	return nil
}

// Exists reports whether the market is already on the user's watchlist.
func (r *WatchlistRepository) Exists(ctx context.Context, userID int64, marketID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM watchlist WHERE user_id = $1 AND market_id = $2)`,
		userID, marketID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check watchlist: %w", err)
	}
	return exists, nil
}

// Remove deletes a market from the user's watchlist.
func (r *WatchlistRepository) Remove(ctx context.Context, userID int64, marketID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM watchlist WHERE user_id = $1 AND market_id = $2`, userID, marketID)
	if err != nil {
		return fmt.Errorf("failed to remove watchlist item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWatchlistItemNotFound
	}
	return nil
}

// ListByUser returns the user's watchlist, oldest first.
func (r *WatchlistRepository) ListByUser(ctx context.Context, userID int64) ([]*model.WatchlistItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, market_id, market_name, price_at_add, created_at
		FROM watchlist WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer rows.Close()

	var items []*model.WatchlistItem
	for rows.Next() {
		var it model.WatchlistItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.MarketID, &it.MarketName, &it.PriceAtAdd, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// PositionRepository handles manually entered positions.
type PositionRepository struct {
	pool *pgxpool.Pool
}

// NewPositionRepository creates a new PositionRepository instance.
func NewPositionRepository(pool *pgxpool.Pool) *PositionRepository {
	return &PositionRepository{pool: pool}
}

// Add records a position.
func (r *PositionRepository) Add(ctx context.Context, p *model.Position) error {
	const query = `
		INSERT INTO positions (user_id, market_id, market_name, side, shares, entry_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.pool.Exec(ctx, query, p.UserID, p.MarketID, p.MarketName, p.Side, p.Shares, p.EntryPrice); err != nil {
		return fmt.Errorf("failed to add position: %w", err)
	}
	return nil
}

// Remove deletes every position the user holds in the market.
func (r *PositionRepository) Remove(ctx context.Context, userID int64, marketID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM positions WHERE user_id = $1 AND market_id = $2`, userID, marketID)
	if err != nil {
		return fmt.Errorf("failed to remove position: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPositionNotFound
	}
	return nil
}

// ListByUser returns the user's positions.
func (r *PositionRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Position, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, market_id, market_name, side, shares, entry_price, created_at
		FROM positions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.ID, &p.UserID, &p.MarketID, &p.MarketName, &p.Side, &p.Shares, &p.EntryPrice, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
