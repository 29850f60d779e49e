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

// RateRepository stores per-user, per-action request windows.
type RateRepository interface {
	// Update runs fn under a row lock and persists the window only when fn returns nil.
	Update(ctx context.Context, userID, action string, fn func(w *model.RateWindow) error) error
	// Get returns the stored window, or its zero value when missing.
	Get(ctx context.Context, userID, action string) (*model.RateWindow, error)
}

type rateRepo struct {
	pool *pgxpool.Pool
}

// NewRateRepo creates a new RateRepository.
func NewRateRepo(pool *pgxpool.Pool) RateRepository {
	return &rateRepo{pool: pool}
}

const rateColumns = `hourly, daily, monthly, last_hour_reset, last_day_reset, last_month_reset`

func scanRate(row pgx.Row, w *model.RateWindow) error {
	return row.Scan(&w.Hourly, &w.Daily, &w.Monthly, &w.LastHourReset, &w.LastDayReset, &w.LastMonthReset)
}

func (r *rateRepo) Update(ctx context.Context, userID, action string, fn func(w *model.RateWindow) error) error {
	if err := querybudget.Track(ctx, "write", "rate_windows"); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction for rate window: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const insertQ = `INSERT INTO rate_windows (user_id, action) VALUES ($1, $2) ON CONFLICT (user_id, action) DO NOTHING`
	if _, err := tx.Exec(ctx, insertQ, userID, action); err != nil {
		return fmt.Errorf("creating %s rate window for user %s: %w", action, userID, err)
	}
	w := model.RateWindow{UserID: userID, Action: action}
	const lockQ = `SELECT ` + rateColumns + ` FROM rate_windows WHERE user_id = $1 AND action = $2 FOR UPDATE`
	if err := scanRate(tx.QueryRow(ctx, lockQ, userID, action), &w); err != nil {
		return fmt.Errorf("locking %s rate window for user %s: %w", action, userID, err)
	}

	if err := fn(&w); err != nil {
		return err
	}

	const updateQ = `
		UPDATE rate_windows
		SET hourly = $3, daily = $4, monthly = $5,
		    last_hour_reset = $6, last_day_reset = $7, last_month_reset = $8
		WHERE user_id = $1 AND action = $2
	`
	if _, err := tx.Exec(ctx, updateQ, userID, action, w.Hourly, w.Daily, w.Monthly,
		w.LastHourReset, w.LastDayReset, w.LastMonthReset); err != nil {
		return fmt.Errorf("updating %s rate window for user %s: %w", action, userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s rate window for user %s: %w", action, userID, err)
	}
	return nil
}

func (r *rateRepo) Get(ctx context.Context, userID, action string) (*model.RateWindow, error) {
	if err := querybudget.Track(ctx, "read", "rate_windows"); err != nil {
		return nil, err
	}
	w := model.RateWindow{UserID: userID, Action: action}
	const q = `SELECT ` + rateColumns + ` FROM rate_windows WHERE user_id = $1 AND action = $2`
	if err := scanRate(r.pool.QueryRow(ctx, q, userID, action), &w); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fetch %s rate window for user %s: %w", action, userID, err)
	}
	return &w, nil
}
