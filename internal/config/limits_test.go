package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLimitsAreValid(t *testing.T) {
	l := DefaultLimits()
	require.NoError(t, l.Validate())

	free := l.Tier(TierFree)
	assert.True(t, free.NeedsCredits)
	assert.Equal(t, int64(3), free.Rate[ActionIdentify].Hourly)
	assert.Equal(t, int64(100_000), ToMicros(free.Spend.Hourly))
	assert.False(t, l.Tier(TierPremium).NeedsCredits)
	assert.Equal(t, int64(15), l.Credits.SignupGrant)
	assert.Equal(t, 10*time.Second, l.Dedupe.Window)
}

func TestTierFallsBackToFree(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, l.Tiers[TierFree], l.Tier("platinum"))
	assert.False(t, l.KnownTier("platinum"))
}

func TestUnknownOperationUsesDefaultCost(t *testing.T) {
	l := DefaultLimits()
	op := l.Operation("somethingNew")
	assert.True(t, op.Cost.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, int64(1), op.Credits)
	assert.Equal(t, int64(15_000), ToMicros(l.Operation(OpFullImageAnalysis).Cost))
}

func TestMilestones(t *testing.T) {
	l := DefaultLimits()
	m, ok := l.Milestone(30)
	require.True(t, ok)
	assert.Equal(t, int64(20), m.Credits)
	_, ok = l.Milestone(31)
	assert.False(t, ok)

	next, ok := l.NextMilestone(7)
	require.True(t, ok)
	assert.Equal(t, 30, next.Days)
	_, ok = l.NextMilestone(365)
	assert.False(t, ok)
}

func TestLoadLimitsOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	body := `
tiers:
  free:
    spend: {hourly: 0.2, daily: 1, monthly: 10}
    rate:
      identify: {hourly: 5, daily: 20}
    needs_credits: true
    collection_max: 20
    max_image_bytes: 204800
operations:
  thumbnailAnalysis: {cost: "0.002", credits: 1}
dedupe:
  window: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	l, err := LoadLimits(path)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), ToMicros(l.Tier(TierFree).Spend.Hourly))
	assert.Equal(t, int64(5), l.Tier(TierFree).Rate[ActionIdentify].Hourly)
	assert.Equal(t, int64(2_000), ToMicros(l.Operation(OpThumbnailAnalysis).Cost))
	assert.Equal(t, 30*time.Second, l.Dedupe.Window)
	// untouched entries keep their defaults
	assert.Equal(t, 250, l.Tier(TierPremium).CollectionMax)
	assert.Equal(t, int64(15_000), ToMicros(l.Operation(OpFullImageAnalysis).Cost))
}

func TestLoadLimitsRejectsNegativeMoney(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("global: {hourly: -1, daily: 100, emergency: 500, alert_ratio: 0.8}\n"), 0o600))

	_, err := LoadLimits(path)
	require.ErrorIs(t, err, ErrInvalidLimits)
}

func TestLoadLimitsMissingFile(t *testing.T) {
	_, err := LoadLimits(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestMicrosRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("0.015")
	assert.True(t, FromMicros(ToMicros(d)).Equal(d))
}
