package repository

import (
	"context"
	"fmt"

	"crystalgate/internal/querybudget"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountTables lists every per-user table in the order rows are removed on account deletion.
// Collection entries go before identifications so no entry is left pointing at a removed row.
var AccountTables = []string{
	"collection_entries",
	"identifications",
	"dream_entries",
	"credit_transactions",
	"credit_balances",
	"spend_windows",
	"rate_windows",
	"usage_events",
	"streaks",
	"users",
}

type AccountRepository interface {
	// Delete removes every row owned by the user in one transaction and returns the number of
	// rows removed per table.
	Delete(ctx context.Context, userID string) (map[string]int64, error)
}

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) AccountRepository {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) Delete(ctx context.Context, userID string) (map[string]int64, error) {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return nil, err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for account deletion: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Lock the user row first so a concurrent signup or checkout cannot recreate rows mid-delete.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM users WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("locking user %s: %w", userID, err)
	}
	removed := make(map[string]int64, len(AccountTables))
	for _, table := range AccountTables {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, userID)
		if err != nil {
			return nil, fmt.Errorf("deleting %s for user %s: %w", table, userID, err)
		}
		removed[table] = tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing account deletion for user %s: %w", userID, err)
	}
	return removed, nil
}
