package service

import (
	"context"
	"errors"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
)

var ErrUnknownTier = errors.New("unknown tier")

// SubscriptionService moves users between tiers in response to billing events.
type SubscriptionService interface {
	Activate(ctx context.Context, userID, tier string, stripeSubscriptionID *string) error
	SetStatus(ctx context.Context, userID, status string) error
	// DowngradeToFree returns the user to the free tier when their subscription ends.
	DowngradeToFree(ctx context.Context, userID string) error
}

type subscriptionService struct {
	users  repository.UserRepository
	limits *config.Limits
	logger zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(users repository.UserRepository, limits *config.Limits, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		users:  users,
		limits: limits,
		logger: logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

func (s *subscriptionService) Activate(ctx context.Context, userID, tier string, stripeSubscriptionID *string) error {
	if !s.limits.KnownTier(tier) {
		return ErrUnknownTier
	}
	if err := s.users.UpdateSubscription(ctx, userID, tier, model.SubscriptionActive, stripeSubscriptionID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("tier", tier).Msg("Failed to activate subscription")
		return err
	}
	s.logger.Info().Str("user_id", userID).Str("tier", tier).Msg("Subscription activated")
	return nil
}

func (s *subscriptionService) SetStatus(ctx context.Context, userID, status string) error {
	if err := s.users.UpdateSubscriptionStatus(ctx, userID, status); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("status", status).Msg("Failed to update subscription status")
		return err
	}
	return nil
}

func (s *subscriptionService) DowngradeToFree(ctx context.Context, userID string) error {
	if err := s.users.UpdateSubscription(ctx, userID, config.TierFree, model.SubscriptionCanceled, nil); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to downgrade user to free tier")
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("User downgraded to free tier")
	return nil
}
