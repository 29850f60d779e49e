package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identifyReq(userID, tier string, payload string) GateRequest {
	return GateRequest{UserID: userID, Tier: tier, Action: config.ActionIdentify, Operation: config.OpThumbnailAnalysis, Payload: []byte(payload)}
}

func TestGateRateRejectionSkipsSpend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.gate.Admit(ctx, identifyReq("u1", config.TierFree, fmt.Sprintf("photo-%d", i))))
	}
	err := h.gate.Admit(ctx, identifyReq("u1", config.TierFree, "photo-3"))
	assert.ErrorIs(t, err, quota.ErrRateLimitExceeded)
	assert.Equal(t, int64(3000), spendOf(t, h, "u1").Hourly)
}

func TestGateDuplicateSkipsSpend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.gate.Admit(ctx, identifyReq("u1", config.TierFree, "same photo")))
	h.setNow(t0.Add(2 * time.Second))
	err := h.gate.Admit(ctx, identifyReq("u1", config.TierFree, "same photo"))
	assert.ErrorIs(t, err, quota.ErrDuplicateRequest)
	assert.Equal(t, int64(1000), spendOf(t, h, "u1").Hourly)

	// the same payload under another action is not a duplicate
	req := identifyReq("u1", config.TierFree, "same photo")
	req.Action = config.ActionGuidance
	req.Operation = config.OpGuidanceFlash
	assert.NoError(t, h.gate.Admit(ctx, req))
}

func TestGateSettleChargesMeteredTiers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	free := identifyReq("u1", config.TierFree, "a")
	s := h.gate.Settle(ctx, free, 900, time.Second, nil)
	assert.Equal(t, int64(1), s.CreditsCharged)
	require.NotNil(t, s.CreditsRemaining)
	assert.Equal(t, int64(14), *s.CreditsRemaining)

	premium := identifyReq("u2", config.TierPremium, "a")
	s = h.gate.Settle(ctx, premium, 900, time.Second, nil)
	assert.Zero(t, s.CreditsCharged)
	assert.Nil(t, s.CreditsRemaining)
	txs, err := h.credits.History(ctx, "u2", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)

	assert.Len(t, h.usage.Events(), 2)
}

func TestGateCacheHitRecordsZeroCost(t *testing.T) {
	h := newHarness(t)
	h.gate.RecordCacheHit(context.Background(), identifyReq("u1", config.TierFree, "a"), time.Millisecond)

	events := h.usage.Events()
	require.Len(t, events, 1)
	assert.Zero(t, events[0].ActualCostMicros)
	assert.Equal(t, true, events[0].Metadata["cached"])
}
