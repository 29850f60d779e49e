package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/repository"
)

type Users struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func NewUsers() *Users {
	return &Users{users: map[string]*model.User{}}
}

var _ repository.UserRepository = (*Users)(nil)

// Put stores a copy of u, replacing any existing user with the same ID.
func (s *Users) Put(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = &u
}

func (s *Users) get(userID string) *model.User {
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *Users) GetOrCreate(ctx context.Context, userID string) (*model.User, error) {
	if err := querybudget.Track(ctx, "read", "users"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		now := time.Now()
		s.users[userID] = &model.User{UserID: userID, Tier: config.TierFree, SubscriptionStatus: model.SubscriptionNone, CreatedAt: now, UpdatedAt: now}
	}
	return s.get(userID), nil
}

func (s *Users) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	if err := querybudget.Track(ctx, "read", "users"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(userID), nil
}

func (s *Users) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	if err := querybudget.Track(ctx, "read", "users"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			return s.get(id), nil
		}
	}
	return nil, nil
}

func (s *Users) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.StripeCustomerID = &customerID
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Users) UpdateSubscription(ctx context.Context, userID, tier, status string, subscriptionID *string) error {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = &model.User{UserID: userID, CreatedAt: time.Now()}
		s.users[userID] = u
	}
	u.Tier = tier
	u.SubscriptionStatus = status
	u.StripeSubscriptionID = subscriptionID
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Users) UpdateSubscriptionStatus(ctx context.Context, userID, status string) error {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.SubscriptionStatus = status
		u.UpdatedAt = time.Now()
	}
	return nil
}

type Usage struct {
	mu     sync.Mutex
	events []model.UsageEvent
}

func NewUsage() *Usage {
	return &Usage{}
}

var _ repository.UsageRepository = (*Usage)(nil)

func (s *Usage) Record(ctx context.Context, e *model.UsageEvent) error {
	if err := querybudget.Track(ctx, "write", "usage_events"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.events) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.events = append(s.events, *e)
	return nil
}

func (s *Usage) SumActualSince(ctx context.Context, userID string, since time.Time) (int64, int64, error) {
	if err := querybudget.Track(ctx, "read", "usage_events"); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var actual, estimated int64
	for _, e := range s.events {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			actual += e.ActualCostMicros
			estimated += e.EstimatedCostMicros
		}
	}
	return actual, estimated, nil
}

// Events returns a copy of every recorded event.
func (s *Usage) Events() []model.UsageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.UsageEvent(nil), s.events...)
}

type Identifications struct {
	mu    sync.Mutex
	items []model.Identification
}

func NewIdentifications() *Identifications {
	return &Identifications{}
}

var _ repository.IdentificationRepository = (*Identifications)(nil)

func (s *Identifications) Create(ctx context.Context, i *model.Identification) error {
	if err := querybudget.Track(ctx, "write", "identifications"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i.CreatedAt = time.Now()
	s.items = append(s.items, *i)
	return nil
}

func (s *Identifications) GetByID(ctx context.Context, userID, id string) (*model.Identification, error) {
	if err := querybudget.Track(ctx, "read", "identifications"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.items {
		if i.ID == id && i.UserID == userID {
			cp := i
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Identifications) ListByUser(ctx context.Context, userID string, limit int) ([]model.Identification, error) {
	if err := querybudget.Track(ctx, "read", "identifications"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Identification
	for n := len(s.items) - 1; n >= 0; n-- {
		if s.items[n].UserID == userID {
			out = append(out, s.items[n])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type Collection struct {
	mu      sync.Mutex
	entries []model.CollectionEntry
}

func NewCollection() *Collection {
	return &Collection{}
}

var _ repository.CollectionRepository = (*Collection)(nil)

func (s *Collection) AddWithLimit(ctx context.Context, e *model.CollectionEntry, max int) error {
	if err := querybudget.Track(ctx, "write", "collection_entries"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, x := range s.entries {
		if x.UserID == e.UserID {
			count++
		}
	}
	if max > 0 && count >= max {
		return repository.ErrCollectionFull
	}
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *Collection) List(ctx context.Context, userID string) ([]model.CollectionEntry, error) {
	if err := querybudget.Track(ctx, "read", "collection_entries"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CollectionEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
