package service

import (
	"context"

	"crystalgate/internal/config"
	"crystalgate/internal/quota"
)

// SpendAmount is a spend window in currency units. Limit is "0" when the window is not enforced.
type SpendAmount struct {
	Spent   string `json:"spent"`
	Limit   string `json:"limit"`
	ResetAt int64  `json:"reset_at"`
}

type SpendStats struct {
	Hourly  SpendAmount `json:"hourly"`
	Daily   SpendAmount `json:"daily"`
	Monthly SpendAmount `json:"monthly"`
}

type ActionStats struct {
	Hourly      int64 `json:"hourly"`
	Daily       int64 `json:"daily"`
	HourlyLimit int64 `json:"hourly_limit"`
	DailyLimit  int64 `json:"daily_limit"`
	// Remaining is -1 when the action is not rate limited.
	Remaining int64 `json:"remaining"`
}

type UsageStats struct {
	Tier    string                 `json:"tier"`
	Spend   SpendStats             `json:"spend"`
	Actions map[string]ActionStats `json:"actions"`
}

// UsageService reports a user's standing against their tier limits without changing it.
type UsageService struct {
	spend *SpendGovernor
	rate  *RateLimiter
}

func NewUsageService(spend *SpendGovernor, rate *RateLimiter) *UsageService {
	return &UsageService{spend: spend, rate: rate}
}

var reportedActions = []string{config.ActionIdentify, config.ActionGuidance, config.ActionDream}

func (s *UsageService) Stats(ctx context.Context, userID, tier string) (*UsageStats, error) {
	snap, err := s.spend.Snapshot(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	amount := func(spent, limit int64, p quota.Period) SpendAmount {
		return SpendAmount{
			Spent:   config.FromMicros(spent).StringFixed(4),
			Limit:   config.FromMicros(limit).StringFixed(2),
			ResetAt: snap.Window.ResetAt(p).Unix(),
		}
	}
	out := &UsageStats{
		Tier: tier,
		Spend: SpendStats{
			Hourly:  amount(snap.Window.Hourly, snap.Ceilings.Hourly, quota.Hourly),
			Daily:   amount(snap.Window.Daily, snap.Ceilings.Daily, quota.Daily),
			Monthly: amount(snap.Window.Monthly, snap.Ceilings.Monthly, quota.Monthly),
		},
		Actions: make(map[string]ActionStats, len(reportedActions)),
	}
	for _, action := range reportedActions {
		r, err := s.rate.Snapshot(ctx, userID, action, tier)
		if err != nil {
			return nil, err
		}
		out.Actions[action] = ActionStats{
			Hourly:      r.Hourly,
			Daily:       r.Daily,
			HourlyLimit: r.HourlyMax,
			DailyLimit:  r.DailyMax,
			Remaining:   r.Remaining(),
		}
	}
	return out, nil
}
