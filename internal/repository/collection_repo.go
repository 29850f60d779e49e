package repository

import (
	"context"
	"fmt"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CollectionRepository interface {
	// AddWithLimit atomically checks the collection size and inserts the entry. Returns
	// ErrCollectionFull when max > 0 and the collection already holds max entries.
	AddWithLimit(ctx context.Context, e *model.CollectionEntry, max int) error
	List(ctx context.Context, userID string) ([]model.CollectionEntry, error)
}

type collectionRepo struct {
	pool *pgxpool.Pool
}

func NewCollectionRepo(pool *pgxpool.Pool) CollectionRepository {
	return &collectionRepo{pool: pool}
}

func (r *collectionRepo) AddWithLimit(ctx context.Context, e *model.CollectionEntry, max int) error {
	if err := querybudget.Track(ctx, "write", "collection_entries"); err != nil {
		return err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("starting transaction for collection add: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM collection_entries WHERE user_id = $1`, e.UserID).Scan(&count); err != nil {
		return fmt.Errorf("counting collection for user %s: %w", e.UserID, err)
	}
	if max > 0 && count >= max {
		return ErrCollectionFull
	}
	const insertQ = `
		INSERT INTO collection_entries (id, user_id, crystal_name, identification_id, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, insertQ, e.ID, e.UserID, e.CrystalName, e.IdentificationID, e.Notes).Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("inserting collection entry for user %s: %w", e.UserID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing collection entry for user %s: %w", e.UserID, err)
	}
	return nil
}

func (r *collectionRepo) List(ctx context.Context, userID string) ([]model.CollectionEntry, error) {
	if err := querybudget.Track(ctx, "read", "collection_entries"); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, user_id, crystal_name, identification_id, notes, created_at
		FROM collection_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list collection for user %s: %w", userID, err)
	}
	defer rows.Close()
	var out []model.CollectionEntry
	for rows.Next() {
		var e model.CollectionEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.CrystalName, &e.IdentificationID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collection entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
