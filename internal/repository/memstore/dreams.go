package memstore

import (
	"context"
	"sync"
	"time"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/repository"
)

type Dreams struct {
	mu      sync.Mutex
	entries []model.DreamEntry
}

func NewDreams() *Dreams {
	return &Dreams{}
}

var _ repository.DreamRepository = (*Dreams)(nil)

func (s *Dreams) Create(ctx context.Context, d *model.DreamEntry) error {
	if err := querybudget.Track(ctx, "write", "dream_entries"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d.CreatedAt = time.Now()
	s.entries = append(s.entries, *d)
	return nil
}

func (s *Dreams) ListByUser(ctx context.Context, userID string, limit int) ([]model.DreamEntry, error) {
	if err := querybudget.Track(ctx, "read", "dream_entries"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DreamEntry
	for n := len(s.entries) - 1; n >= 0; n-- {
		if s.entries[n].UserID == userID {
			out = append(out, s.entries[n])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
