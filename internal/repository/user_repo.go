package repository

import (
	"context"
	"errors"
	"fmt"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository interface {
	// GetOrCreate returns the user, creating it on the free tier when missing.
	GetOrCreate(ctx context.Context, userID string) (*model.User, error)
	// GetUserByID returns nil, nil when the user does not exist.
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error
	UpdateSubscription(ctx context.Context, userID, tier, status string, subscriptionID *string) error
	UpdateSubscriptionStatus(ctx context.Context, userID, status string) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `user_id, tier, subscription_status, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.UserID, &u.Tier, &u.SubscriptionStatus, &u.StripeCustomerID, &u.StripeSubscriptionID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetOrCreate(ctx context.Context, userID string) (*model.User, error) {
	if err := querybudget.Track(ctx, "read", "users"); err != nil {
		return nil, err
	}
	// The no-op update makes RETURNING yield the existing row on conflict.
	const q = `
		INSERT INTO users (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		return nil, fmt.Errorf("get or create user %s: %w", userID, err)
	}
	return u, nil
}

func (r *userRepo) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	if err := querybudget.Track(ctx, "read", "users"); err != nil {
		return nil, err
	}
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	return u, nil
}

func (r *userRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	if err := querybudget.Track(ctx, "read", "users"); err != nil {
		return nil, err
	}
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID))
	if err != nil {
		return nil, fmt.Errorf("fetch user by stripe customer %s: %w", customerID, err)
	}
	return u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return err
	}
	const q = `UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, customerID); err != nil {
		return fmt.Errorf("update stripe customer id for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) UpdateSubscription(ctx context.Context, userID, tier, status string, subscriptionID *string) error {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return err
	}
	const q = `
		INSERT INTO users (user_id, tier, subscription_status, stripe_subscription_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET tier = EXCLUDED.tier,
		    subscription_status = EXCLUDED.subscription_status,
		    stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		    updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, q, userID, tier, status, subscriptionID); err != nil {
		return fmt.Errorf("update subscription for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) UpdateSubscriptionStatus(ctx context.Context, userID, status string) error {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return err
	}
	const q = `UPDATE users SET subscription_status = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, status); err != nil {
		return fmt.Errorf("update subscription status for user %s: %w", userID, err)
	}
	return nil
}
