package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/model"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/quota"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
)

// RateLimiter counts requests per user and action against the tier's hourly and daily ceilings.
type RateLimiter struct {
	repo    repository.RateRepository
	limits  *config.Limits
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewRateLimiter(repo repository.RateRepository, limits *config.Limits, m *metrics.Metrics, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		repo:    repo,
		limits:  limits,
		metrics: m,
		logger:  logger.With().Str("service", "RateLimiter").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *RateLimiter) ceilings(action, tier string) quota.Ceilings {
	rc := l.limits.Tier(tier).Rate[action]
	return quota.Ceilings{Hourly: rc.Hourly, Daily: rc.Daily}
}

// Authorize counts one request. A rejection commits nothing. Store failures allow the request.
func (l *RateLimiter) Authorize(ctx context.Context, userID, action, tier string) error {
	now := l.now()
	ceilings := l.ceilings(action, tier)
	err := l.repo.Update(ctx, userID, action, func(w *model.RateWindow) error {
		next, _, err := quota.Apply(w.Window, now, 1, ceilings)
		if err != nil {
			return err
		}
		w.Window = next
		return nil
	})

	var ex *quota.Exceeded
	switch {
	case err == nil:
		l.metrics.Gate("rate", true)
		return nil
	case errors.As(err, &ex):
		l.metrics.Gate("rate", false)
		wait := ex.ResetAt.Sub(now)
		if ex.Period == quota.Hourly {
			return quota.Reject(quota.ReasonRateLimitExceeded, wait,
				"Rate limit: %d %s requests per hour. Resets in %d minutes.", ex.Ceiling, action, quota.MinutesUntil(now, ex.ResetAt))
		}
		return quota.Reject(quota.ReasonRateLimitExceeded, wait,
			"Daily limit: %d %s requests. Resets in %d hours.", ex.Ceiling, action, quota.HoursUntil(now, ex.ResetAt))
	case errors.Is(err, querybudget.ErrExceeded):
		return err
	default:
		l.logger.Error().Err(err).Str("user_id", userID).Str("action", action).Msg("Rate store unavailable, allowing request")
		l.metrics.FailOpen("rate")
		return nil
	}
}

// RateSnapshot is the rolled view of one action's counters.
type RateSnapshot struct {
	Action    string `json:"action"`
	Hourly    int64  `json:"hourly"`
	Daily     int64  `json:"daily"`
	HourlyMax int64  `json:"hourly_max"`
	DailyMax  int64  `json:"daily_max"`
}

// Remaining returns how many more requests fit in both windows, or -1 when unlimited.
func (s RateSnapshot) Remaining() int64 {
	rem := int64(-1)
	if s.HourlyMax > 0 {
		rem = max(s.HourlyMax-s.Hourly, 0)
	}
	if s.DailyMax > 0 {
		d := max(s.DailyMax-s.Daily, 0)
		if rem < 0 || d < rem {
			rem = d
		}
	}
	return rem
}

func (l *RateLimiter) Snapshot(ctx context.Context, userID, action, tier string) (*RateSnapshot, error) {
	w, err := l.repo.Get(ctx, userID, action)
	if err != nil {
		return nil, fmt.Errorf("read rate window: %w", err)
	}
	view, _ := w.Window.Roll(l.now())
	c := l.ceilings(action, tier)
	return &RateSnapshot{Action: action, Hourly: view.Hourly, Daily: view.Daily, HourlyMax: c.Hourly, DailyMax: c.Daily}, nil
}
