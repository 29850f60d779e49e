package service

import (
	"context"
	"errors"
	"fmt"

	"crystalgate/internal/model"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
)

var ErrActiveSubscription = errors.New("cancel the active subscription before deleting the account")

// AccountService removes a user's data.
type AccountService struct {
	users    repository.UserRepository
	accounts repository.AccountRepository
	logger   zerolog.Logger
}

func NewAccountService(users repository.UserRepository, accounts repository.AccountRepository, logger zerolog.Logger) *AccountService {
	return &AccountService{users: users, accounts: accounts, logger: logger.With().Str("service", "AccountService").Logger()}
}

// Delete removes every stored row for the user. Users still billed by Stripe are refused so a
// deleted account is never charged again. Deleting an unknown user succeeds with nothing removed.
func (s *AccountService) Delete(ctx context.Context, userID string) (map[string]int64, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user != nil && user.StripeSubscriptionID != nil &&
		(user.SubscriptionStatus == model.SubscriptionActive || user.SubscriptionStatus == model.SubscriptionPastDue) {
		return nil, ErrActiveSubscription
	}
	removed, err := s.accounts.Delete(ctx, userID)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range removed {
		total += n
	}
	s.logger.Info().Str("user_id", userID).Int64("rows", total).Msg("Account deleted")
	return removed, nil
}
