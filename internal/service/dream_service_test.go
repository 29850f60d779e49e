package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDreamInterpretChargesAndSaves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.analyzer.dream.Analysis.Summary = "Flying dreams speak of freedom."

	res, err := h.dreams.Interpret(ctx, "u1", DreamInput{
		Content:      "  I was flying above a forest of glowing trees.  ",
		UserCrystals: []string{"Amethyst", "Moonstone"},
		MoonPhase:    "waxing gibbous",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.CreditsCharged)
	require.NotNil(t, res.CreditsRemaining)
	assert.Equal(t, int64(13), *res.CreditsRemaining)

	e := res.Entry
	assert.Equal(t, "I was flying above a forest of glowing trees.", e.Content)
	assert.Contains(t, e.Analysis, "Flying dreams speak of freedom.")
	assert.Equal(t, "I welcome what my dreams show me.", e.Affirmation)
	assert.Equal(t, []string{"Amethyst", "Moonstone"}, e.CrystalsUsed)
	require.NotNil(t, e.MoonPhase)
	assert.Nil(t, e.Mood)
	assert.Equal(t, t0, e.DreamDate)
	assert.Equal(t, []string{"gemini-2.5-flash"}, h.analyzer.models)

	events := h.usage.Events()
	require.Len(t, events, 1)
	assert.Equal(t, config.OpDreamAnalysis, events[0].Operation)
	assert.Equal(t, int64(1340), events[0].ActualCostMicros)
	assert.Zero(t, spendOf(t, h, "u1").PendingCredits)

	history, err := h.dreams.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, e.ID, history[0].ID)
}

func TestDreamDailyLimitPerTier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i, text := range []string{"A dream about the sea at dawn.", "A dream about a mountain cave."} {
		h.setNow(t0.Add(time.Duration(i) * time.Minute))
		_, err := h.dreams.Interpret(ctx, "u1", DreamInput{Content: text})
		require.NoError(t, err)
	}
	_, err := h.dreams.Interpret(ctx, "u1", DreamInput{Content: "A dream about a burning library."})
	var rej *quota.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, quota.ReasonRateLimitExceeded, rej.Reason)

	h.withTier("u2", config.TierPremium)
	res, err := h.dreams.Interpret(ctx, "u2", DreamInput{Content: "A dream about a burning library."})
	require.NoError(t, err)
	assert.Zero(t, res.CreditsCharged)
}

func TestDreamValidatesAndReleasesOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.dreams.Interpret(ctx, "u1", DreamInput{Content: "too short"})
	assert.ErrorIs(t, err, ErrInvalidDream)
	assert.Zero(t, h.analyzer.calls)

	h.analyzer.err = errors.New("model overloaded")
	_, err = h.dreams.Interpret(ctx, "u1", DreamInput{Content: "A long dream about an endless staircase."})
	require.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Zero(t, spendOf(t, h, "u1").PendingCredits)

	b, err := h.creditSvc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), b.Balance)
}

func TestDreamCapsCrystalSuggestions(t *testing.T) {
	h := newHarness(t)
	for _, n := range []string{"Agate", "Jasper", "Onyx", "Opal", "Pyrite"} {
		h.analyzer.dream.CrystalSuggestions = append(h.analyzer.dream.CrystalSuggestions, model.CrystalSuggestion{Name: n})
	}
	res, err := h.dreams.Interpret(context.Background(), "u1", DreamInput{Content: "A dream full of shining stones."})
	require.NoError(t, err)
	assert.Len(t, res.Entry.CrystalSuggestions, maxDreamCrystals)
}
