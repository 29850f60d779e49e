package repository

import (
	"context"
	"fmt"
	"time"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepository records the actual cost of completed operations.
type UsageRepository interface {
	Record(ctx context.Context, e *model.UsageEvent) error
	// SumActualSince totals actual and estimated cost in micro-units for a user since the given time.
	SumActualSince(ctx context.Context, userID string, since time.Time) (actual, estimated int64, err error)
}

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a new UsageRepository.
func NewUsageRepo(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) Record(ctx context.Context, e *model.UsageEvent) error {
	if err := querybudget.Track(ctx, "write", "usage_events"); err != nil {
		return err
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	const q = `
		INSERT INTO usage_events (user_id, operation, estimated_cost_micros, actual_cost_micros, latency_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := r.pool.QueryRow(ctx, q, e.UserID, e.Operation, e.EstimatedCostMicros, e.ActualCostMicros, e.LatencyMS, e.Metadata).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("recording usage event for user %s: %w", e.UserID, err)
	}
	return nil
}

func (r *usageRepo) SumActualSince(ctx context.Context, userID string, since time.Time) (int64, int64, error) {
	if err := querybudget.Track(ctx, "read", "usage_events"); err != nil {
		return 0, 0, err
	}
	const q = `
		SELECT COALESCE(SUM(actual_cost_micros), 0), COALESCE(SUM(estimated_cost_micros), 0)
		FROM usage_events
		WHERE user_id = $1 AND created_at >= $2
	`
	var actual, estimated int64
	if err := r.pool.QueryRow(ctx, q, userID, since).Scan(&actual, &estimated); err != nil {
		return 0, 0, fmt.Errorf("summing usage events for user %s: %w", userID, err)
	}
	return actual, estimated, nil
}
