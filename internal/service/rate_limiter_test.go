package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterHourlyCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree))
	}
	err := h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree)
	var rej *quota.Rejection
	require.ErrorAs(t, err, &rej)
	assert.ErrorIs(t, err, quota.ErrRateLimitExceeded)
	assert.Equal(t, "Rate limit: 3 identify requests per hour. Resets in 60 minutes.", rej.Message)
	assert.Equal(t, time.Hour, rej.RetryAfter)

	// rejected attempts are not counted
	snap, err := h.limiter.Snapshot(ctx, "u1", config.ActionIdentify, config.TierFree)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Hourly)
	assert.Equal(t, int64(0), snap.Remaining())

	h.setNow(t0.Add(time.Hour))
	require.NoError(t, h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree))
}

func TestRateLimiterDailyCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for hour, n := range []int{3, 3, 3, 1} {
		h.setNow(t0.Add(time.Duration(hour) * time.Hour))
		for i := 0; i < n; i++ {
			require.NoError(t, h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree))
		}
	}
	err := h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree)
	var rej *quota.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Daily limit: 10 identify requests. Resets in 21 hours.", rej.Message)
}

func TestRateLimiterCountsActionsSeparately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, h.limiter.Authorize(ctx, "u1", config.ActionGuidance, config.TierFree))
	}
	assert.Error(t, h.limiter.Authorize(ctx, "u1", config.ActionGuidance, config.TierFree))
	assert.NoError(t, h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree))
	assert.NoError(t, h.limiter.Authorize(ctx, "u2", config.ActionGuidance, config.TierFree))
}

func TestRateLimiterFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.rate.FailWith = errors.New("connection refused")
	for i := 0; i < 10; i++ {
		assert.NoError(t, h.limiter.Authorize(context.Background(), "u1", config.ActionIdentify, config.TierFree))
	}
}

func TestRateLimiterPropagatesQueryBudget(t *testing.T) {
	h := newHarness(t)
	g := querybudget.New(1)
	ctx := querybudget.WithGuard(context.Background(), g)
	require.NoError(t, querybudget.Track(ctx, "read", "users"))

	err := h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree)
	assert.ErrorIs(t, err, querybudget.ErrExceeded)
}

func TestRateSnapshotUnlimitedAction(t *testing.T) {
	h := newHarness(t)
	snap, err := h.limiter.Snapshot(context.Background(), "u1", "unknown", config.TierFree)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), snap.Remaining())
}

func TestConcurrentAuthorizeOnLastRateSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.limiter.Authorize(ctx, "u1", config.ActionIdentify, config.TierFree)
		}(i)
	}
	wg.Wait()

	passed := 0
	for _, err := range errs {
		if err == nil {
			passed++
			continue
		}
		assert.ErrorIs(t, err, quota.ErrRateLimitExceeded)
	}
	assert.Equal(t, 3, passed)

	snap, err := h.limiter.Snapshot(ctx, "u1", config.ActionIdentify, config.TierFree)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Hourly)
}
