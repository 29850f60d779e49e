package memstore

import (
	"context"
	"sync"
	"time"

	"crystalgate/internal/model"
	"crystalgate/internal/repository"
)

// Global mirrors the Redis global spend script.
type Global struct {
	mu       sync.Mutex
	spend    model.GlobalSpend
	FailWith error
}

func NewGlobal() *Global {
	return &Global{}
}

var _ repository.GlobalSpendStore = (*Global)(nil)

func (g *Global) Consume(_ context.Context, now time.Time, amount int64, c model.GlobalCeilings) (model.GlobalSpend, error) {
	if g.FailWith != nil {
		return model.GlobalSpend{}, g.FailWith
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.spend
	if !now.Before(s.LastHourReset.Add(time.Hour)) {
		s.Hourly = 0
		s.LastHourReset = now
	}
	if !now.Before(s.LastDayReset.Add(24 * time.Hour)) {
		s.Daily = 0
		s.LastDayReset = now
	}
	switch {
	case c.Emergency > 0 && s.Total+amount > c.Emergency:
		return s, repository.ErrEmergencyStop
	case c.Hourly > 0 && s.Hourly+amount > c.Hourly:
		return s, repository.ErrGlobalHourlyLimit
	case c.Daily > 0 && s.Daily+amount > c.Daily:
		return s, repository.ErrGlobalDailyLimit
	}
	s.Hourly += amount
	s.Daily += amount
	s.Total += amount
	g.spend = s
	return s, nil
}

func (g *Global) Snapshot(context.Context) (model.GlobalSpend, error) {
	if g.FailWith != nil {
		return model.GlobalSpend{}, g.FailWith
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spend, nil
}

// Set replaces the stored counters.
func (g *Global) Set(s model.GlobalSpend) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spend = s
}

// Dedupe keeps markers with expiry against an injectable clock.
type Dedupe struct {
	mu       sync.Mutex
	expiry   map[string]time.Time
	Now      func() time.Time
	FailWith error
}

func NewDedupe() *Dedupe {
	return &Dedupe{expiry: map[string]time.Time{}, Now: time.Now}
}

var _ repository.DedupeStore = (*Dedupe)(nil)

func (d *Dedupe) Mark(_ context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	if d.FailWith != nil {
		return false, 0, d.FailWith
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.Now()
	if exp, ok := d.expiry[key]; ok && now.Before(exp) {
		return false, exp.Sub(now), nil
	}
	d.expiry[key] = now.Add(ttl)
	return true, 0, nil
}

type cacheEntry struct {
	value  []byte
	expiry time.Time
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: map[string]cacheEntry{}}
}

var _ repository.ResponseCache = (*Cache)(nil)

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiry) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: append([]byte(nil), value...), expiry: time.Now().Add(ttl)}
	return nil
}
