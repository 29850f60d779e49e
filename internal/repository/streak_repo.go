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

type StreakRepository interface {
	// Update runs fn on the streak under a row lock and persists it only when fn returns nil.
	Update(ctx context.Context, userID string, fn func(s *model.Streak) error) error
	Get(ctx context.Context, userID string) (*model.Streak, error)
}

type streakRepo struct {
	pool *pgxpool.Pool
}

func NewStreakRepo(pool *pgxpool.Pool) StreakRepository {
	return &streakRepo{pool: pool}
}

const streakColumns = `current, longest, last_check_in, freezes_remaining, freezes_refilled_at, total_check_ins`

func scanStreak(row pgx.Row, s *model.Streak) error {
	return row.Scan(&s.Current, &s.Longest, &s.LastCheckIn, &s.FreezesRemaining, &s.FreezesRefilledAt, &s.TotalCheckIns)
}

func (r *streakRepo) Update(ctx context.Context, userID string, fn func(s *model.Streak) error) error {
	if err := querybudget.Track(ctx, "write", "streaks"); err != nil {
		return err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction for streak: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `INSERT INTO streaks (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("creating streak for user %s: %w", userID, err)
	}
	s := model.Streak{UserID: userID}
	if err := scanStreak(tx.QueryRow(ctx, `SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 FOR UPDATE`, userID), &s); err != nil {
		return fmt.Errorf("locking streak for user %s: %w", userID, err)
	}
	if err := fn(&s); err != nil {
		return err
	}
	const updateQ = `
		UPDATE streaks
		SET current = $2, longest = $3, last_check_in = $4, freezes_remaining = $5,
		    freezes_refilled_at = $6, total_check_ins = $7
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, updateQ, userID, s.Current, s.Longest, s.LastCheckIn, s.FreezesRemaining, s.FreezesRefilledAt, s.TotalCheckIns); err != nil {
		return fmt.Errorf("updating streak for user %s: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing streak for user %s: %w", userID, err)
	}
	return nil
}

func (r *streakRepo) Get(ctx context.Context, userID string) (*model.Streak, error) {
	if err := querybudget.Track(ctx, "read", "streaks"); err != nil {
		return nil, err
	}
	s := model.Streak{UserID: userID}
	if err := scanStreak(r.pool.QueryRow(ctx, `SELECT `+streakColumns+` FROM streaks WHERE user_id = $1`, userID), &s); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fetch streak for user %s: %w", userID, err)
	}
	return &s, nil
}
