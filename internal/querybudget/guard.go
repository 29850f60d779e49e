// Package querybudget caps the number of ledger-store operations one request may perform.
package querybudget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultMax is the per-request ceiling used when none is configured.
const DefaultMax = 10

// ErrExceeded is matched by every *ExceededError.
var ErrExceeded = errors.New("query budget exceeded")

// Op is one tracked store operation.
type Op struct {
	Kind     string    `json:"kind"`
	Resource string    `json:"resource"`
	At       time.Time `json:"at"`
}

// ExceededError is fatal and not retryable. It lists every operation performed by the request.
type ExceededError struct {
	Max int
	Ops []Op
}

func (e *ExceededError) Error() string {
	parts := make([]string, len(e.Ops))
	for i, op := range e.Ops {
		parts[i] = op.Kind + ":" + op.Resource
	}
	return fmt.Sprintf("query budget of %d exceeded after %d operations [%s]", e.Max, len(e.Ops), strings.Join(parts, ", "))
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// Guard counts operations for one request. Safe for concurrent use.
type Guard struct {
	mu  sync.Mutex
	max int
	ops []Op
}

func New(max int) *Guard {
	if max <= 0 {
		max = DefaultMax
	}
	return &Guard{max: max}
}

// Track records an operation and fails once the count passes the ceiling. Every call after the
// first failure fails as well.
func (g *Guard) Track(kind, resource string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, Op{Kind: kind, Resource: resource, At: time.Now()})
	if len(g.ops) > g.max {
		return &ExceededError{Max: g.max, Ops: append([]Op(nil), g.ops...)}
	}
	return nil
}

// Stats is a snapshot of a Guard.
type Stats struct {
	Total int  `json:"total"`
	Max   int  `json:"max"`
	Ops   []Op `json:"ops"`
}

func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{Total: len(g.ops), Max: g.max, Ops: append([]Op(nil), g.ops...)}
}

type ctxKey struct{}

func WithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, ctxKey{}, g)
}

// FromContext returns the request's guard, or nil.
func FromContext(ctx context.Context) *Guard {
	g, _ := ctx.Value(ctxKey{}).(*Guard)
	return g
}

// Track records an operation against the guard carried by ctx. Without a guard it is a no-op.
func Track(ctx context.Context, kind, resource string) error {
	g := FromContext(ctx)
	if g == nil {
		return nil
	}
	return g.Track(kind, resource)
}
