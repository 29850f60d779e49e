package service

import (
	"context"
	"errors"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
)

var ErrAlreadyCheckedIn = errors.New("already checked in today")

const (
	reasonDailyCheckIn    = "daily_check_in"
	reasonStreakMilestone = "streak_milestone"
)

// CheckInResult describes one accepted daily check-in.
type CheckInResult struct {
	Streak         model.Streak      `json:"streak"`
	FreezeUsed     bool              `json:"freeze_used"`
	CreditsAwarded int64             `json:"credits_awarded"`
	Balance        *int64            `json:"balance,omitempty"`
	Milestone      *config.Milestone `json:"milestone,omitempty"`
	NextMilestone  *config.Milestone `json:"next_milestone,omitempty"`
}

type CheckInService struct {
	streaks repository.StreakRepository
	credits CreditService
	limits  *config.Limits
	logger  zerolog.Logger
	now     func() time.Time
}

func NewCheckInService(streaks repository.StreakRepository, credits CreditService, limits *config.Limits, logger zerolog.Logger) *CheckInService {
	return &CheckInService{
		streaks: streaks,
		credits: credits,
		limits:  limits,
		logger:  logger.With().Str("service", "CheckInService").Logger(),
		now:     time.Now,
	}
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// refillFreezes tops freezes up to the tier allowance once per calendar month.
func refillFreezes(s *model.Streak, now time.Time, allowance int) {
	if !s.FreezesRefilledAt.IsZero() && !s.FreezesRefilledAt.Before(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)) {
		return
	}
	s.FreezesRemaining = allowance
	s.FreezesRefilledAt = now
}

// advanceStreak applies a check-in at now. A one-day gap continues the streak, a two-day gap
// continues it by spending a freeze, anything longer starts over.
func advanceStreak(s *model.Streak, now time.Time) (freezeUsed bool, err error) {
	today := utcDay(now)
	if s.LastCheckIn != nil {
		gap := int(today.Sub(utcDay(*s.LastCheckIn)).Hours() / 24)
		switch {
		case gap <= 0:
			return false, ErrAlreadyCheckedIn
		case gap == 1:
			s.Current++
		case gap == 2 && s.FreezesRemaining > 0:
			s.FreezesRemaining--
			s.Current++
			freezeUsed = true
		default:
			s.Current = 1
		}
	} else {
		s.Current = 1
	}
	s.Longest = max(s.Longest, s.Current)
	s.TotalCheckIns++
	s.LastCheckIn = &now
	return freezeUsed, nil
}

// CheckIn records today's check-in and awards the daily and milestone credits.
func (c *CheckInService) CheckIn(ctx context.Context, userID, tier string) (*CheckInResult, error) {
	now := c.now().UTC()
	allowance := c.limits.Tier(tier).StreakFreezes

	var res CheckInResult
	err := c.streaks.Update(ctx, userID, func(s *model.Streak) error {
		refillFreezes(s, now, allowance)
		used, err := advanceStreak(s, now)
		if err != nil {
			return err
		}
		res.FreezeUsed = used
		res.Streak = *s
		return nil
	})
	if err != nil {
		return nil, err
	}

	award := func(amount int64, reason string, meta map[string]any) {
		if amount <= 0 {
			return
		}
		bal, err := c.credits.Award(ctx, userID, amount, reason, meta)
		if err != nil {
			c.logger.Error().Err(err).Str("user_id", userID).Str("reason", reason).Msg("Failed to award check-in credits")
			return
		}
		res.CreditsAwarded += amount
		res.Balance = &bal
	}

	award(c.limits.Credits.DailyCheckIn, reasonDailyCheckIn, map[string]any{"streak": res.Streak.Current})
	if m, ok := c.limits.Milestone(res.Streak.Current); ok {
		res.Milestone = &m
		award(m.Credits, reasonStreakMilestone, map[string]any{"days": m.Days, "badge": m.Badge})
	}
	if next, ok := c.limits.NextMilestone(res.Streak.Current); ok {
		res.NextMilestone = &next
	}

	c.logger.Info().Str("user_id", userID).Int("streak", res.Streak.Current).Bool("freeze_used", res.FreezeUsed).Int64("credits", res.CreditsAwarded).Msg("Check-in recorded")
	return &res, nil
}

// Streak returns the user's streak as stored.
func (c *CheckInService) Streak(ctx context.Context, userID string) (*model.Streak, error) {
	return c.streaks.Get(ctx, userID)
}
