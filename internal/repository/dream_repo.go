package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DreamRepository interface {
	Create(ctx context.Context, d *model.DreamEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.DreamEntry, error)
}

type dreamRepo struct {
	pool *pgxpool.Pool
}

func NewDreamRepo(pool *pgxpool.Pool) DreamRepository {
	return &dreamRepo{pool: pool}
}

func (r *dreamRepo) Create(ctx context.Context, d *model.DreamEntry) error {
	if err := querybudget.Track(ctx, "write", "dream_entries"); err != nil {
		return err
	}
	suggestions, err := json.Marshal(d.CrystalSuggestions)
	if err != nil {
		return fmt.Errorf("encoding crystal suggestions: %w", err)
	}
	if d.CrystalsUsed == nil {
		d.CrystalsUsed = []string{}
	}
	const q = `
		INSERT INTO dream_entries (id, user_id, content, analysis, affirmation, crystal_suggestions, crystals_used,
			mood, moon_phase, dream_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err = r.pool.QueryRow(ctx, q, d.ID, d.UserID, d.Content, d.Analysis, d.Affirmation, suggestions, d.CrystalsUsed,
		d.Mood, d.MoonPhase, d.DreamDate).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving dream entry for user %s: %w", d.UserID, err)
	}
	return nil
}

func (r *dreamRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.DreamEntry, error) {
	if err := querybudget.Track(ctx, "read", "dream_entries"); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, user_id, content, analysis, affirmation, crystal_suggestions, crystals_used, mood, moon_phase,
			dream_date, created_at
		FROM dream_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list dream entries for user %s: %w", userID, err)
	}
	defer rows.Close()
	var out []model.DreamEntry
	for rows.Next() {
		var d model.DreamEntry
		var suggestions []byte
		if err := rows.Scan(&d.ID, &d.UserID, &d.Content, &d.Analysis, &d.Affirmation, &suggestions, &d.CrystalsUsed,
			&d.Mood, &d.MoonPhase, &d.DreamDate, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dream entry: %w", err)
		}
		if err := json.Unmarshal(suggestions, &d.CrystalSuggestions); err != nil {
			return nil, fmt.Errorf("decode crystal suggestions for dream %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
