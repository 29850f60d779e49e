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

// SpendRepository stores per-user spend windows.
type SpendRepository interface {
	// Update runs fn on the user's window under a row lock and persists the window only when fn
	// returns nil. A missing window is passed to fn as its zero value.
	Update(ctx context.Context, userID string, fn func(w *model.SpendWindow) error) error
	// Get returns the stored window without rolling it. A missing window is returned as its zero value.
	Get(ctx context.Context, userID string) (*model.SpendWindow, error)
}

type spendRepo struct {
	pool *pgxpool.Pool
}

// NewSpendRepo creates a new SpendRepository.
func NewSpendRepo(pool *pgxpool.Pool) SpendRepository {
	return &spendRepo{pool: pool}
}

const spendColumns = `hourly, daily, monthly, last_hour_reset, last_day_reset, last_month_reset,
		daily_alert_sent, monthly_alert_sent, last_operation_at, pending_credits, pending_since`

func scanSpend(row pgx.Row, w *model.SpendWindow) error {
	return row.Scan(&w.Hourly, &w.Daily, &w.Monthly, &w.LastHourReset, &w.LastDayReset, &w.LastMonthReset,
		&w.DailyAlertSent, &w.MonthlyAlertSent, &w.LastOperationAt, &w.PendingCredits, &w.PendingSince)
}

// Update applies fn to the window in one transaction.
func (r *spendRepo) Update(ctx context.Context, userID string, fn func(w *model.SpendWindow) error) error {
	if err := querybudget.Track(ctx, "write", "spend_windows"); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction for spend window: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `INSERT INTO spend_windows (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("creating spend window for user %s: %w", userID, err)
	}
	w := model.SpendWindow{UserID: userID}
	if err := scanSpend(tx.QueryRow(ctx, `SELECT `+spendColumns+` FROM spend_windows WHERE user_id = $1 FOR UPDATE`, userID), &w); err != nil {
		return fmt.Errorf("locking spend window for user %s: %w", userID, err)
	}

	if err := fn(&w); err != nil {
		return err
	}

	const updateQ = `
		UPDATE spend_windows
		SET hourly = $2, daily = $3, monthly = $4,
		    last_hour_reset = $5, last_day_reset = $6, last_month_reset = $7,
		    daily_alert_sent = $8, monthly_alert_sent = $9, last_operation_at = $10,
		    pending_credits = $11, pending_since = $12
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, updateQ, userID, w.Hourly, w.Daily, w.Monthly,
		w.LastHourReset, w.LastDayReset, w.LastMonthReset,
		w.DailyAlertSent, w.MonthlyAlertSent, w.LastOperationAt,
		w.PendingCredits, w.PendingSince); err != nil {
		return fmt.Errorf("updating spend window for user %s: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing spend window for user %s: %w", userID, err)
	}
	return nil
}

// Get returns the stored window.
func (r *spendRepo) Get(ctx context.Context, userID string) (*model.SpendWindow, error) {
	if err := querybudget.Track(ctx, "read", "spend_windows"); err != nil {
		return nil, err
	}
	w := model.SpendWindow{UserID: userID}
	err := scanSpend(r.pool.QueryRow(ctx, `SELECT `+spendColumns+` FROM spend_windows WHERE user_id = $1`, userID), &w)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fetch spend window for user %s: %w", userID, err)
	}
	return &w, nil
}
