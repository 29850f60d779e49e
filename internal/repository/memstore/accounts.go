package memstore

import (
	"context"

	"crystalgate/internal/querybudget"
	"crystalgate/internal/repository"
)

// Accounts deletes a user across the in-memory stores. Each store is locked in turn, so a reader
// may briefly see a partially removed account.
type Accounts struct {
	users      *Users
	credits    *Credits
	spend      *Spend
	rate       *Rate
	usage      *Usage
	idents     *Identifications
	collection *Collection
	streaks    *Streaks
	dreams     *Dreams
}

func NewAccounts(users *Users, credits *Credits, spend *Spend, rate *Rate, usage *Usage, idents *Identifications, collection *Collection, streaks *Streaks, dreams *Dreams) *Accounts {
	return &Accounts{users: users, credits: credits, spend: spend, rate: rate, usage: usage, idents: idents, collection: collection, streaks: streaks, dreams: dreams}
}

var _ repository.AccountRepository = (*Accounts)(nil)

func (a *Accounts) Delete(ctx context.Context, userID string) (map[string]int64, error) {
	if err := querybudget.Track(ctx, "write", "users"); err != nil {
		return nil, err
	}
	txs, balances := a.credits.deleteUser(userID)
	return map[string]int64{
		"collection_entries":  a.collection.deleteUser(userID),
		"identifications":     a.idents.deleteUser(userID),
		"dream_entries":       a.dreams.deleteUser(userID),
		"credit_transactions": txs,
		"credit_balances":     balances,
		"spend_windows":       a.spend.deleteUser(userID),
		"rate_windows":        a.rate.deleteUser(userID),
		"usage_events":        a.usage.deleteUser(userID),
		"streaks":             a.streaks.deleteUser(userID),
		"users":               a.users.deleteUser(userID),
	}, nil
}

func (s *Users) deleteUser(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return 0
	}
	delete(s.users, userID)
	return 1
}

func (c *Credits) deleteUser(userID string) (txs, balances int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.balances[userID]; ok {
		delete(c.balances, userID)
		balances = 1
	}
	kept := c.txs[:0]
	for _, t := range c.txs {
		if t.UserID == userID {
			txs++
			continue
		}
		kept = append(kept, t)
	}
	c.txs = kept
	return txs, balances
}

func (s *Spend) deleteUser(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[userID]; !ok {
		return 0
	}
	delete(s.windows, userID)
	return 1
}

func (r *Rate) deleteUser(userID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.windows {
		if k.user == userID {
			delete(r.windows, k)
			n++
		}
	}
	return n
}

func (s *Usage) deleteUser(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.events[:0]
	for _, e := range s.events {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return n
}

func (s *Identifications) deleteUser(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.items[:0]
	for _, i := range s.items {
		if i.UserID == userID {
			n++
			continue
		}
		kept = append(kept, i)
	}
	s.items = kept
	return n
}

func (s *Collection) deleteUser(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n
}

func (s *Streaks) deleteUser(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streaks[userID]; !ok {
		return 0
	}
	delete(s.streaks, userID)
	return 1
}

func (s *Dreams) deleteUser(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n
}
