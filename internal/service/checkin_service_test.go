package service

import (
	"context"
	"testing"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceStreak(t *testing.T) {
	day := func(n int) time.Time { return t0.AddDate(0, 0, n) }
	last := day(0)

	tests := []struct {
		name       string
		at         time.Time
		freezes    int
		wantStreak int
		wantFreeze bool
		wantErr    error
	}{
		{name: "same day", at: day(0).Add(5 * time.Hour), wantStreak: 4, wantErr: ErrAlreadyCheckedIn},
		{name: "next day", at: day(1), wantStreak: 5},
		{name: "next day just after midnight", at: time.Date(2025, 6, 11, 0, 0, 1, 0, time.UTC), wantStreak: 5},
		{name: "one missed day with freeze", at: day(2), freezes: 1, wantStreak: 5, wantFreeze: true},
		{name: "one missed day without freeze", at: day(2), wantStreak: 1},
		{name: "two missed days with freeze", at: day(3), freezes: 2, wantStreak: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := model.Streak{Current: 4, Longest: 4, LastCheckIn: &last, FreezesRemaining: tt.freezes, TotalCheckIns: 4}
			used, err := advanceStreak(&s, tt.at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 4, s.TotalCheckIns)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStreak, s.Current)
			assert.Equal(t, tt.wantFreeze, used)
			assert.Equal(t, 5, s.TotalCheckIns)
			assert.Equal(t, max(4, tt.wantStreak), s.Longest)
			if used {
				assert.Equal(t, tt.freezes-1, s.FreezesRemaining)
			}
		})
	}
}

func TestRefillFreezesOncePerMonth(t *testing.T) {
	var s model.Streak
	refillFreezes(&s, t0, 3)
	assert.Equal(t, 3, s.FreezesRemaining)

	s.FreezesRemaining = 1
	refillFreezes(&s, t0.AddDate(0, 0, 10), 3)
	assert.Equal(t, 1, s.FreezesRemaining)

	refillFreezes(&s, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, 3, s.FreezesRemaining)
}

func TestCheckInAwardsDailyCredit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.checkIn.CheckIn(ctx, "u1", config.TierFree)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, int64(1), res.CreditsAwarded)
	require.NotNil(t, res.Balance)
	assert.Equal(t, int64(16), *res.Balance)
	assert.Nil(t, res.Milestone)
	require.NotNil(t, res.NextMilestone)
	assert.Equal(t, 7, res.NextMilestone.Days)

	_, err = h.checkIn.CheckIn(ctx, "u1", config.TierFree)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestCheckInMilestoneAtSevenDays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var res *CheckInResult
	for d := 0; d < 7; d++ {
		h.setNow(t0.AddDate(0, 0, d))
		var err error
		res, err = h.checkIn.CheckIn(ctx, "u1", config.TierFree)
		require.NoError(t, err)
	}
	assert.Equal(t, 7, res.Streak.Current)
	require.NotNil(t, res.Milestone)
	assert.Equal(t, "week_warrior", res.Milestone.Badge)
	assert.Equal(t, int64(6), res.CreditsAwarded)
	assert.Equal(t, int64(15+7+5), *res.Balance)
	assert.Equal(t, 30, res.NextMilestone.Days)

	txs, err := h.creditSvc.History(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, reasonStreakMilestone, txs[0].Reason)
}

func TestCheckInPremiumFreezeCarriesStreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.checkIn.CheckIn(ctx, "u1", config.TierPremium)
	require.NoError(t, err)
	h.setNow(t0.AddDate(0, 0, 2))
	res, err := h.checkIn.CheckIn(ctx, "u1", config.TierPremium)
	require.NoError(t, err)
	assert.True(t, res.FreezeUsed)
	assert.Equal(t, 2, res.Streak.Current)
	assert.Equal(t, 2, res.Streak.FreezesRemaining)

	// free tier has no freezes
	_, err = h.checkIn.CheckIn(ctx, "u2", config.TierFree)
	require.NoError(t, err)
	h.setNow(t0.AddDate(0, 0, 4))
	res, err = h.checkIn.CheckIn(ctx, "u2", config.TierFree)
	require.NoError(t, err)
	assert.False(t, res.FreezeUsed)
	assert.Equal(t, 1, res.Streak.Current)
}
