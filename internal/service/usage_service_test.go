package service

import (
	"context"
	"testing"
	"time"

	"crystalgate/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageStatsReflectGateActivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewUsageService(h.governor, h.limiter)

	_, err := h.identify.Identify(ctx, "u1", IdentifyRequest{ImageBase64: pngImage(1024, 'u')})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "u1", config.TierFree)
	require.NoError(t, err)
	assert.Equal(t, config.TierFree, stats.Tier)
	assert.Equal(t, "0.0010", stats.Spend.Hourly.Spent)
	assert.Equal(t, "0.10", stats.Spend.Hourly.Limit)
	assert.Equal(t, "5.00", stats.Spend.Monthly.Limit)
	assert.Equal(t, t0.Add(time.Hour).Unix(), stats.Spend.Hourly.ResetAt)

	identify := stats.Actions[config.ActionIdentify]
	assert.Equal(t, int64(1), identify.Hourly)
	assert.Equal(t, int64(3), identify.HourlyLimit)
	assert.Equal(t, int64(2), identify.Remaining)

	guidance := stats.Actions[config.ActionGuidance]
	assert.Zero(t, guidance.Hourly)
	assert.Equal(t, int64(2), guidance.Remaining)

	dream := stats.Actions[config.ActionDream]
	assert.Equal(t, int64(2), dream.DailyLimit)
	assert.Equal(t, int64(2), dream.Remaining)
}
