package memstore

import (
	"context"
	"sync"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/repository"
)

// Spend serializes updates per store; fn runs while the lock is held.
type Spend struct {
	mu      sync.Mutex
	windows map[string]model.SpendWindow
	// FailWith, when set, is returned by every call.
	FailWith error
}

func NewSpend() *Spend {
	return &Spend{windows: map[string]model.SpendWindow{}}
}

var _ repository.SpendRepository = (*Spend)(nil)

func (s *Spend) Update(ctx context.Context, userID string, fn func(w *model.SpendWindow) error) error {
	if err := querybudget.Track(ctx, "write", "spend_windows"); err != nil {
		return err
	}
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[userID]
	if !ok {
		w = model.SpendWindow{UserID: userID}
	}
	if err := fn(&w); err != nil {
		return err
	}
	s.windows[userID] = w
	return nil
}

func (s *Spend) Get(ctx context.Context, userID string) (*model.SpendWindow, error) {
	if err := querybudget.Track(ctx, "read", "spend_windows"); err != nil {
		return nil, err
	}
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[userID]
	if !ok {
		w = model.SpendWindow{UserID: userID}
	}
	return &w, nil
}

type rateKey struct{ user, action string }

type Rate struct {
	mu       sync.Mutex
	windows  map[rateKey]model.RateWindow
	FailWith error
}

func NewRate() *Rate {
	return &Rate{windows: map[rateKey]model.RateWindow{}}
}

var _ repository.RateRepository = (*Rate)(nil)

func (r *Rate) Update(ctx context.Context, userID, action string, fn func(w *model.RateWindow) error) error {
	if err := querybudget.Track(ctx, "write", "rate_windows"); err != nil {
		return err
	}
	if r.FailWith != nil {
		return r.FailWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := rateKey{userID, action}
	w, ok := r.windows[k]
	if !ok {
		w = model.RateWindow{UserID: userID, Action: action}
	}
	if err := fn(&w); err != nil {
		return err
	}
	r.windows[k] = w
	return nil
}

func (r *Rate) Get(ctx context.Context, userID, action string) (*model.RateWindow, error) {
	if err := querybudget.Track(ctx, "read", "rate_windows"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[rateKey{userID, action}]
	if !ok {
		w = model.RateWindow{UserID: userID, Action: action}
	}
	return &w, nil
}

type Streaks struct {
	mu      sync.Mutex
	streaks map[string]model.Streak
}

func NewStreaks() *Streaks {
	return &Streaks{streaks: map[string]model.Streak{}}
}

var _ repository.StreakRepository = (*Streaks)(nil)

func (s *Streaks) Update(ctx context.Context, userID string, fn func(st *model.Streak) error) error {
	if err := querybudget.Track(ctx, "write", "streaks"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streaks[userID]
	if !ok {
		st = model.Streak{UserID: userID}
	}
	if err := fn(&st); err != nil {
		return err
	}
	s.streaks[userID] = st
	return nil
}

func (s *Streaks) Get(ctx context.Context, userID string) (*model.Streak, error) {
	if err := querybudget.Track(ctx, "read", "streaks"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streaks[userID]
	if !ok {
		st = model.Streak{UserID: userID}
	}
	return &st, nil
}
