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
	"github.com/shopspring/decimal"
)

// Alert kinds published by the governor.
const (
	AlertUserDaily     = "user_daily_threshold"
	AlertUserMonthly   = "user_monthly_threshold"
	AlertGlobalDaily   = "global_daily_threshold"
	AlertEmergencyStop = "emergency_stop"
)

// SpendGovernor enforces per-user and global spend ceilings on estimated operation cost.
type SpendGovernor struct {
	spendRepo repository.SpendRepository
	usageRepo repository.UsageRepository
	global    repository.GlobalSpendStore
	markers   repository.DedupeStore
	credits   CreditService
	alerter   *Alerter
	limits    *config.Limits
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewSpendGovernor(
	spendRepo repository.SpendRepository,
	usageRepo repository.UsageRepository,
	global repository.GlobalSpendStore,
	markers repository.DedupeStore,
	credits CreditService,
	alerter *Alerter,
	limits *config.Limits,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *SpendGovernor {
	return &SpendGovernor{
		spendRepo: spendRepo,
		usageRepo: usageRepo,
		global:    global,
		markers:   markers,
		credits:   credits,
		alerter:   alerter,
		limits:    limits,
		metrics:   m,
		logger:    logger.With().Str("service", "SpendGovernor").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (g *SpendGovernor) userCeilings(tier string) quota.Ceilings {
	s := g.limits.Tier(tier).Spend
	return quota.Ceilings{
		Hourly:  config.ToMicros(s.Hourly),
		Daily:   config.ToMicros(s.Daily),
		Monthly: config.ToMicros(s.Monthly),
	}
}

func (g *SpendGovernor) globalCeilings() model.GlobalCeilings {
	gl := g.limits.Global
	return model.GlobalCeilings{
		Hourly:    config.ToMicros(gl.Hourly),
		Daily:     config.ToMicros(gl.Daily),
		Emergency: config.ToMicros(gl.Emergency),
	}
}

// EstimatedCost returns the estimated cost of operation in micro-units.
func (g *SpendGovernor) EstimatedCost(operation string) int64 {
	return config.ToMicros(g.limits.Operation(operation).Cost)
}

// creditHoldTTL bounds how long a hold outlives a request that never settled.
const creditHoldTTL = 5 * time.Minute

// creditHold is the number of credits an admitted request holds until it settles.
func (g *SpendGovernor) creditHold(tier string, op config.Operation) int64 {
	if g.limits.Tier(tier).NeedsCredits && op.Credits > 0 {
		return op.Credits
	}
	return 0
}

func expireHold(w *model.SpendWindow, now time.Time) {
	if w.PendingSince != nil && now.Sub(*w.PendingSince) >= creditHoldTTL {
		w.PendingCredits = 0
		w.PendingSince = nil
	}
}

func releaseHold(w *model.SpendWindow, credits int64) {
	w.PendingCredits -= credits
	if w.PendingCredits <= 0 {
		w.PendingCredits = 0
		w.PendingSince = nil
	}
}

// checkCredits rejects when the balance minus credits already held cannot cover need.
func (g *SpendGovernor) checkCredits(ctx context.Context, userID, tier string, need, held int64) error {
	check, err := g.credits.CheckCredits(ctx, userID, tier, need+held)
	if err != nil {
		return err
	}
	if !check.HasCredits {
		g.metrics.Gate("credits", false)
		return quota.Reject(quota.ReasonInsufficientCredits, 0,
			"Insufficient credits. You have %d credits, this requires %d.", max(check.Balance-held, 0), need)
	}
	return nil
}

// Authorize returns nil when the operation may run. Rejections are *quota.Rejection values and
// leave every counter unchanged. Store failures allow the operation, except an exhausted query budget.
//
// On credit-metered tiers the credit check runs under the spend window lock and a passing request
// holds its credits in the window until Settle or Release. Concurrent requests therefore see each
// other's holds and cannot both pass on the last credit.
func (g *SpendGovernor) Authorize(ctx context.Context, userID, operation, tier string) error {
	op := g.limits.Operation(operation)
	hold := g.creditHold(tier, op)

	cost := config.ToMicros(op.Cost)
	now := g.now()
	ceilings := g.userCeilings(tier)

	var (
		globalSpend model.GlobalSpend
		globalErr   error
		creditErr   error
	)
	err := g.spendRepo.Update(ctx, userID, func(w *model.SpendWindow) error {
		if hold > 0 {
			expireHold(w, now)
			if creditErr = g.checkCredits(ctx, userID, tier, hold, w.PendingCredits); creditErr != nil {
				return creditErr
			}
		}
		next, rolled, err := quota.Apply(w.Window, now, cost, ceilings)
		if err != nil {
			return err
		}
		globalSpend, globalErr = g.global.Consume(ctx, now, cost, g.globalCeilings())
		if isGlobalBreach(globalErr) {
			return globalErr
		}
		w.Window = next
		if rolled.Day {
			w.DailyAlertSent = false
		}
		if rolled.Month {
			w.MonthlyAlertSent = false
		}
		w.LastOperationAt = &now
		if hold > 0 {
			w.PendingCredits += hold
			w.PendingSince = &now
		}
		return nil
	})
	if creditErr != nil {
		return creditErr
	}

	var exceeded *quota.Exceeded
	switch {
	case err == nil:
		if globalErr != nil {
			g.logger.Error().Err(globalErr).Str("user_id", userID).Msg("Global spend store unavailable, allowing request")
			g.metrics.FailOpen("global_spend")
		}
		g.metrics.Gate("spend", true)
		g.metrics.Spend(tier, cost)
		return nil
	case errors.As(err, &exceeded):
		g.metrics.Gate("spend", false)
		return userSpendRejection(exceeded, now)
	case errors.Is(err, repository.ErrEmergencyStop):
		g.metrics.Gate("spend", false)
		g.metrics.EmergencyStop()
		g.logger.Error().Int64("total_micros", globalSpend.Total).Str("user_id", userID).Msg("Emergency spend ceiling reached")
		g.alerter.Send(ctx, model.SpendAlert{
			Kind:        AlertEmergencyStop,
			Severity:    model.AlertCritical,
			UserID:      userID,
			Tier:        tier,
			SpentMicros: globalSpend.Total,
			LimitMicros: g.globalCeilings().Emergency,
			Percent:     percent(globalSpend.Total, g.globalCeilings().Emergency),
		})
		return quota.ErrEmergencyStop
	case errors.Is(err, repository.ErrGlobalHourlyLimit):
		g.metrics.Gate("spend", false)
		return quota.Reject(quota.ReasonGlobalSpendExceeded, globalSpend.LastHourReset.Add(time.Hour).Sub(now),
			"System is experiencing high demand. Please try again later.")
	case errors.Is(err, repository.ErrGlobalDailyLimit):
		g.metrics.Gate("spend", false)
		return quota.Reject(quota.ReasonGlobalSpendExceeded, globalSpend.LastDayReset.Add(24*time.Hour).Sub(now),
			"System is experiencing high demand. Please try again later.")
	case errors.Is(err, querybudget.ErrExceeded):
		return err
	default:
		// No hold could be taken, so the ledger is still consulted before failing open.
		if hold > 0 {
			if cerr := g.checkCredits(ctx, userID, tier, hold, 0); cerr != nil {
				return cerr
			}
		}
		g.logger.Error().Err(err).Str("user_id", userID).Str("operation", operation).Msg("Spend store unavailable, allowing request")
		g.metrics.FailOpen("spend")
		return nil
	}
}

// ReleaseHold drops the credits held by Authorize for a request that ends without Settle. Errors
// are logged; an unreleased hold expires on its own.
func (g *SpendGovernor) ReleaseHold(ctx context.Context, userID, operation, tier string) {
	hold := g.creditHold(tier, g.limits.Operation(operation))
	if hold == 0 {
		return
	}
	err := g.spendRepo.Update(ctx, userID, func(w *model.SpendWindow) error {
		releaseHold(w, hold)
		return nil
	})
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", userID).Str("operation", operation).Msg("Failed to release credit hold")
	}
}

func isGlobalBreach(err error) bool {
	return errors.Is(err, repository.ErrEmergencyStop) ||
		errors.Is(err, repository.ErrGlobalHourlyLimit) ||
		errors.Is(err, repository.ErrGlobalDailyLimit)
}

func dollars(micros int64) string {
	return config.FromMicros(micros).StringFixed(2)
}

func userSpendRejection(ex *quota.Exceeded, now time.Time) *quota.Rejection {
	wait := ex.ResetAt.Sub(now)
	switch ex.Period {
	case quota.Hourly:
		return quota.Reject(quota.ReasonHourlySpendExceeded, wait,
			"Hourly spending limit reached ($%s). Resets in %d minutes.", dollars(ex.Ceiling), quota.MinutesUntil(now, ex.ResetAt))
	case quota.Daily:
		return quota.Reject(quota.ReasonDailySpendExceeded, wait,
			"Daily spending limit reached ($%s). Resets in %d hours.", dollars(ex.Ceiling), quota.HoursUntil(now, ex.ResetAt))
	default:
		return quota.Reject(quota.ReasonMonthlySpendExceeded, wait,
			"Monthly spending limit reached ($%s). Please upgrade your plan.", dollars(ex.Ceiling))
	}
}

func percent(spent, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	p, _ := decimal.NewFromInt(spent).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(limit)).Round(1).Float64()
	return p
}

func (g *SpendGovernor) threshold(ceiling int64) int64 {
	return decimal.NewFromInt(ceiling).Mul(g.limits.Global.AlertRatio).Ceil().IntPart()
}

// CheckAlerts publishes one-shot threshold alerts for the user's daily and monthly spend and a
// critical alert when global daily spend crosses the alert ratio. Errors are logged, never returned.
func (g *SpendGovernor) CheckAlerts(ctx context.Context, userID, tier string) {
	g.settleWindow(ctx, userID, tier, 0)
}

// Finish releases the request's credit hold and checks alerts in one window update.
func (g *SpendGovernor) Finish(ctx context.Context, userID, operation, tier string) {
	g.settleWindow(ctx, userID, tier, g.creditHold(tier, g.limits.Operation(operation)))
}

func (g *SpendGovernor) alertsDue(w *model.SpendWindow, now time.Time, ceilings quota.Ceilings) bool {
	view, rolled := w.Window.Roll(now)
	dailySent := w.DailyAlertSent && !rolled.Day
	monthlySent := w.MonthlyAlertSent && !rolled.Month
	return (ceilings.Daily > 0 && !dailySent && view.Daily >= g.threshold(ceilings.Daily)) ||
		(ceilings.Monthly > 0 && !monthlySent && view.Monthly >= g.threshold(ceilings.Monthly))
}

func (g *SpendGovernor) settleWindow(ctx context.Context, userID, tier string, release int64) {
	now := g.now()
	ceilings := g.userCeilings(tier)

	update := release > 0
	if !update {
		stored, err := g.spendRepo.Get(ctx, userID)
		if err != nil {
			g.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to read spend window for alerts")
			return
		}
		update = g.alertsDue(stored, now, ceilings)
	}

	if update {
		var pending []model.SpendAlert
		err := g.spendRepo.Update(ctx, userID, func(w *model.SpendWindow) error {
			pending = pending[:0]
			if release > 0 {
				releaseHold(w, release)
			}
			cur, r := w.Window.Roll(now)
			if r.Day {
				w.DailyAlertSent = false
			}
			if r.Month {
				w.MonthlyAlertSent = false
			}
			if ceilings.Daily > 0 && !w.DailyAlertSent && cur.Daily >= g.threshold(ceilings.Daily) {
				w.DailyAlertSent = true
				pending = append(pending, g.userAlert(AlertUserDaily, quota.Daily, userID, tier, cur.Daily, ceilings.Daily))
			}
			if ceilings.Monthly > 0 && !w.MonthlyAlertSent && cur.Monthly >= g.threshold(ceilings.Monthly) {
				w.MonthlyAlertSent = true
				pending = append(pending, g.userAlert(AlertUserMonthly, quota.Monthly, userID, tier, cur.Monthly, ceilings.Monthly))
			}
			return nil
		})
		if err != nil {
			g.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to update spend window after request")
			return
		}
		for _, a := range pending {
			g.alerter.Send(ctx, a)
		}
	}

	g.checkGlobalAlert(ctx, now)
}

func (g *SpendGovernor) userAlert(kind string, period quota.Period, userID, tier string, spent, limit int64) model.SpendAlert {
	return model.SpendAlert{
		Kind:        kind,
		Severity:    model.AlertWarning,
		UserID:      userID,
		Tier:        tier,
		Period:      string(period),
		SpentMicros: spent,
		LimitMicros: limit,
		Percent:     percent(spent, limit),
	}
}

// checkGlobalAlert fires at most once per global day, using a marker keyed on the day's reset stamp.
func (g *SpendGovernor) checkGlobalAlert(ctx context.Context, now time.Time) {
	limit := g.globalCeilings().Daily
	if limit <= 0 {
		return
	}
	spend, err := g.global.Snapshot(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("Failed to read global spend for alerts")
		return
	}
	if !now.Before(spend.LastDayReset.Add(24*time.Hour)) || spend.Daily < g.threshold(limit) {
		return
	}
	key := fmt.Sprintf("alert:%s:%d", AlertGlobalDaily, spend.LastDayReset.Unix())
	fresh, _, err := g.markers.Mark(ctx, key, 24*time.Hour)
	if err != nil {
		g.logger.Error().Err(err).Msg("Failed to mark global spend alert")
		return
	}
	if !fresh {
		return
	}
	g.alerter.Send(ctx, model.SpendAlert{
		Kind:        AlertGlobalDaily,
		Severity:    model.AlertCritical,
		Period:      string(quota.Daily),
		SpentMicros: spend.Daily,
		LimitMicros: limit,
		Percent:     percent(spend.Daily, limit),
	})
}

// RecordActual appends the measured cost of a completed operation. It never touches the windows.
func (g *SpendGovernor) RecordActual(ctx context.Context, userID, operation string, actualMicros int64, latency time.Duration, metadata map[string]any) error {
	e := &model.UsageEvent{
		UserID:              userID,
		Operation:           operation,
		EstimatedCostMicros: g.EstimatedCost(operation),
		ActualCostMicros:    actualMicros,
		LatencyMS:           latency.Milliseconds(),
		Metadata:            metadata,
	}
	if err := g.usageRepo.Record(ctx, e); err != nil {
		return fmt.Errorf("record actual usage: %w", err)
	}
	return nil
}

// SpendSnapshot is the rolled view of a user's spend, in micro-units.
type SpendSnapshot struct {
	Window   quota.Window
	Ceilings quota.Ceilings
}

// Snapshot returns the user's spend as it would be seen by the next Authorize call.
func (g *SpendGovernor) Snapshot(ctx context.Context, userID, tier string) (*SpendSnapshot, error) {
	w, err := g.spendRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read spend window: %w", err)
	}
	view, _ := w.Window.Roll(g.now())
	return &SpendSnapshot{Window: view, Ceilings: g.userCeilings(tier)}, nil
}
