// Package repository provides data access layer implementations.
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

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = `id, telegram_id, username, subscription_status, stripe_customer_id,
	stripe_subscription_id, premium_expires_at, trial_step, created_at, updated_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Username,
		&user.SubscriptionStatus,
		&user.StripeCustomerID,
		&user.StripeSubscriptionID,
		&user.PremiumExpiresAt,
		&user.TrialStep,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a user with the given status and optional premium expiry.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, username, status string, expiresAt *time.Time) (*model.User, error) {
	query := `
		INSERT INTO users (telegram_id, username, subscription_status, premium_expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID, username, status, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByTelegramID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by internal id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByCustomerID retrieves a user by Stripe customer id.
func (r *UserRepository) GetByCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1 LIMIT 1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by customer: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by Telegram ID, creating one with the given
// status and expiry if it doesn't exist. The bool reports creation.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username, status string, expiresAt *time.Time) (*model.User, bool, error) {
	user, err := r.GetByTelegramID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, telegramID, username, status, expiresAt)
	if err != nil {
		// Another request might have created the user
		user, err = r.GetByTelegramID(ctx, telegramID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// UpdateUsername updates a user's username.
func (r *UserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	const query = `UPDATE users SET username = $2, updated_at = NOW() WHERE telegram_id = $1`

	result, err := r.pool.Exec(ctx, query, telegramID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetCustomerID stores the Stripe customer id.
func (r *UserRepository) SetCustomerID(ctx context.Context, id int64, customerID string) error {
	const query = `UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, customerID)
	if err != nil {
		return fmt.Errorf("failed to set customer id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SubscriptionUpdate is an unconditional overwrite of the billing columns.
// Nil CustomerID or SubscriptionID leave the stored value untouched.
type SubscriptionUpdate struct {
	Status         string
	CustomerID     *string
	SubscriptionID *string
	ExpiresAt      *time.Time
}

// SetSubscription overwrites the subscription status and expiry.
// Last write wins.
func (r *UserRepository) SetSubscription(ctx context.Context, id int64, upd SubscriptionUpdate) (*model.User, error) {
	query := `
		UPDATE users
		SET subscription_status = $2,
			stripe_customer_id = COALESCE($3, stripe_customer_id),
			stripe_subscription_id = COALESCE($4, stripe_subscription_id),
			premium_expires_at = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, upd.Status, upd.CustomerID, upd.SubscriptionID, upd.ExpiresAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set subscription: %w", err)
	}
	return user, nil
}

// SetStatus overwrites only the subscription status.
func (r *UserRepository) SetStatus(ctx context.Context, id int64, status string) error {
	const query = `UPDATE users SET subscription_status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListTrialUsers returns every user currently on trial.
func (r *UserRepository) ListTrialUsers(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE subscription_status = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, model.StatusTrial)
	if err != nil {
		return nil, fmt.Errorf("failed to list trial users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// AdvanceTrialStep sets the drip step counter.
func (r *UserRepository) AdvanceTrialStep(ctx context.Context, id int64, step int) error {
	const query = `UPDATE users SET trial_step = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, step); err != nil {
		return fmt.Errorf("failed to advance trial step: %w", err)
	}
	return nil
}
