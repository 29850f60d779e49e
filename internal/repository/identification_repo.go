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

// ErrCollectionFull is returned when a user's collection has reached its tier limit.
var ErrCollectionFull = errors.New("collection_full")

type IdentificationRepository interface {
	Create(ctx context.Context, id *model.Identification) error
	GetByID(ctx context.Context, userID, id string) (*model.Identification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Identification, error)
}

type identificationRepo struct {
	pool *pgxpool.Pool
}

func NewIdentificationRepo(pool *pgxpool.Pool) IdentificationRepository {
	return &identificationRepo{pool: pool}
}

const identificationColumns = `id, user_id, crystal_name, variety, confidence, description, analysis_type,
		operation, model_used, estimated_cost_micros, image_key, result, created_at`

func scanIdentification(row pgx.Row) (*model.Identification, error) {
	var i model.Identification
	err := row.Scan(&i.ID, &i.UserID, &i.CrystalName, &i.Variety, &i.Confidence, &i.Description, &i.AnalysisType,
		&i.Operation, &i.ModelUsed, &i.EstimatedCostMicros, &i.ImageKey, &i.Result, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *identificationRepo) Create(ctx context.Context, i *model.Identification) error {
	if err := querybudget.Track(ctx, "write", "identifications"); err != nil {
		return err
	}
	const q = `
		INSERT INTO identifications (id, user_id, crystal_name, variety, confidence, description, analysis_type,
			operation, model_used, estimated_cost_micros, image_key, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, q, i.ID, i.UserID, i.CrystalName, i.Variety, i.Confidence, i.Description, i.AnalysisType,
		i.Operation, i.ModelUsed, i.EstimatedCostMicros, i.ImageKey, []byte(i.Result)).Scan(&i.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving identification for user %s: %w", i.UserID, err)
	}
	return nil
}

// GetByID returns nil, nil when the identification does not belong to the user or does not exist.
func (r *identificationRepo) GetByID(ctx context.Context, userID, id string) (*model.Identification, error) {
	if err := querybudget.Track(ctx, "read", "identifications"); err != nil {
		return nil, err
	}
	const q = `SELECT ` + identificationColumns + ` FROM identifications WHERE id = $1 AND user_id = $2`
	i, err := scanIdentification(r.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch identification %s: %w", id, err)
	}
	return i, nil
}

func (r *identificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Identification, error) {
	if err := querybudget.Track(ctx, "read", "identifications"); err != nil {
		return nil, err
	}
	const q = `SELECT ` + identificationColumns + ` FROM identifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list identifications for user %s: %w", userID, err)
	}
	defer rows.Close()
	var out []model.Identification
	for rows.Next() {
		i, err := scanIdentification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identification: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}
