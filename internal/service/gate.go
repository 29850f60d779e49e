package service

import (
	"context"
	"time"

	"crystalgate/internal/config"

	"github.com/rs/zerolog"
)

// GateRequest describes one metered request.
type GateRequest struct {
	UserID    string
	Tier      string
	Action    string
	Operation string
	// Payload is fingerprinted for deduplication. Empty payloads skip the dedupe check.
	Payload []byte
}

// Gate runs the rate, dedupe and spend checks in order and settles the request after the work ran.
type Gate struct {
	rate    *RateLimiter
	dedupe  *Deduplicator
	spend   *SpendGovernor
	credits CreditService
	limits  *config.Limits
	logger  zerolog.Logger
}

func NewGate(rate *RateLimiter, dedupe *Deduplicator, spend *SpendGovernor, credits CreditService, limits *config.Limits, logger zerolog.Logger) *Gate {
	return &Gate{rate: rate, dedupe: dedupe, spend: spend, credits: credits, limits: limits, logger: logger.With().Str("service", "Gate").Logger()}
}

// Admit returns nil when every gate passes. The first rejection stops the chain.
func (g *Gate) Admit(ctx context.Context, req GateRequest) error {
	if err := g.rate.Authorize(ctx, req.UserID, req.Action, req.Tier); err != nil {
		return err
	}
	if len(req.Payload) > 0 {
		fp := Fingerprint(req.Payload)
		if err := g.dedupe.CheckAndMark(ctx, req.UserID, req.Action+":"+fp, 0); err != nil {
			return err
		}
	}
	return g.spend.Authorize(ctx, req.UserID, req.Operation, req.Tier)
}

// AdmitFollowUp authorizes a second operation inside an already admitted request. Only the spend
// governor runs; the request was already counted by the rate limiter and deduplicator.
func (g *Gate) AdmitFollowUp(ctx context.Context, req GateRequest) error {
	return g.spend.Authorize(ctx, req.UserID, req.Operation, req.Tier)
}

// Settlement is what Settle did after a successful operation.
type Settlement struct {
	CreditsCharged   int64
	CreditsRemaining *int64
}

// Settle debits credits on metered tiers, records the actual cost, releases the credit hold and
// checks alerts. The operation already succeeded, so failures here are logged and never undo the result.
func (g *Gate) Settle(ctx context.Context, req GateRequest, actualMicros int64, latency time.Duration, metadata map[string]any) Settlement {
	out := g.charge(ctx, req, actualMicros, latency, metadata)
	g.spend.Finish(ctx, req.UserID, req.Operation, req.Tier)
	return out
}

// SettleFollowUp settles an operation admitted with AdmitFollowUp. Alerts are left to the Settle
// call of the enclosing request.
func (g *Gate) SettleFollowUp(ctx context.Context, req GateRequest, actualMicros int64, latency time.Duration, metadata map[string]any) Settlement {
	out := g.charge(ctx, req, actualMicros, latency, metadata)
	g.spend.ReleaseHold(ctx, req.UserID, req.Operation, req.Tier)
	return out
}

func (g *Gate) charge(ctx context.Context, req GateRequest, actualMicros int64, latency time.Duration, metadata map[string]any) Settlement {
	var out Settlement
	op := g.limits.Operation(req.Operation)
	if g.limits.Tier(req.Tier).NeedsCredits && op.Credits > 0 {
		balance, err := g.credits.Deduct(ctx, req.UserID, op.Credits, req.Operation, metadata)
		if err != nil {
			g.logger.Error().Err(err).Str("user_id", req.UserID).Str("operation", req.Operation).Msg("Failed to debit credits after successful operation")
		} else {
			out.CreditsCharged = op.Credits
			out.CreditsRemaining = &balance
		}
	}
	if err := g.spend.RecordActual(ctx, req.UserID, req.Operation, actualMicros, latency, metadata); err != nil {
		g.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to record actual usage")
	}
	return out
}

// Release ends an admitted request that failed before Settle. Nothing is charged.
func (g *Gate) Release(ctx context.Context, req GateRequest) {
	g.spend.ReleaseHold(ctx, req.UserID, req.Operation, req.Tier)
}

// RecordCacheHit records a zero-cost usage event for a request served from cache and releases its
// credit hold.
func (g *Gate) RecordCacheHit(ctx context.Context, req GateRequest, latency time.Duration) {
	if err := g.spend.RecordActual(ctx, req.UserID, req.Operation, 0, latency, map[string]any{"cached": true}); err != nil {
		g.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to record cached usage")
	}
	g.Release(ctx, req)
}
