// Package memstore holds in-process implementations of the repository interfaces. They keep the
// same atomicity and query-budget accounting as the Postgres and Redis stores and back the
// memory store driver and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/repository"
)

type Credits struct {
	mu          sync.Mutex
	signupGrant int64
	balances    map[string]*model.CreditBalance
	txs         []model.CreditTransaction
	nextID      int64
	now         func() time.Time
}

func NewCredits(signupGrant int64) *Credits {
	return &Credits{signupGrant: signupGrant, balances: map[string]*model.CreditBalance{}, now: time.Now}
}

var _ repository.CreditRepository = (*Credits)(nil)

func (c *Credits) ensure(userID string) *model.CreditBalance {
	if b, ok := c.balances[userID]; ok {
		return b
	}
	now := c.now()
	b := &model.CreditBalance{UserID: userID, Balance: c.signupGrant, TotalEarned: c.signupGrant, CreatedAt: now, UpdatedAt: now}
	c.balances[userID] = b
	c.appendTx(userID, model.TransactionAward, c.signupGrant, repository.SignupReason, nil, c.signupGrant)
	return b
}

func (c *Credits) appendTx(userID string, typ model.TransactionType, amount int64, reason string, metadata map[string]any, after int64) model.CreditTransaction {
	c.nextID++
	if metadata == nil {
		metadata = map[string]any{}
	}
	t := model.CreditTransaction{
		ID:           c.nextID,
		UserID:       userID,
		Type:         typ,
		Amount:       amount,
		Reason:       reason,
		Metadata:     metadata,
		BalanceAfter: after,
		CreatedAt:    c.now(),
	}
	c.txs = append(c.txs, t)
	return t
}

func (c *Credits) GetOrCreate(ctx context.Context, userID string) (*model.CreditBalance, error) {
	if err := querybudget.Track(ctx, "read", "credit_balances"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := *c.ensure(userID)
	return &b, nil
}

func (c *Credits) Award(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (*model.CreditTransaction, error) {
	if err := querybudget.Track(ctx, "write", "credit_balances"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.ensure(userID)
	b.Balance += amount
	b.TotalEarned += amount
	b.UpdatedAt = c.now()
	t := c.appendTx(userID, model.TransactionAward, amount, reason, metadata, b.Balance)
	return &t, nil
}

func (c *Credits) Deduct(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (*model.CreditTransaction, error) {
	if err := querybudget.Track(ctx, "write", "credit_balances"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.ensure(userID)
	if b.Balance < amount {
		return nil, repository.ErrInsufficientBalance
	}
	b.Balance -= amount
	b.TotalSpent += amount
	b.UpdatedAt = c.now()
	t := c.appendTx(userID, model.TransactionDeduction, -amount, reason, metadata, b.Balance)
	return &t, nil
}

func (c *Credits) History(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	if err := querybudget.Track(ctx, "read", "credit_transactions"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.CreditTransaction
	for _, t := range c.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
