package service

import (
	"context"
	"errors"
	"fmt"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/model"
	"crystalgate/internal/quota"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
)

var ErrInvalidAmount = errors.New("credit amount must be positive")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// CreditCheck is the outcome of CheckCredits. Exempt tiers are not metered and always have credits.
type CreditCheck struct {
	HasCredits bool  `json:"has_credits"`
	Balance    int64 `json:"balance"`
	Exempt     bool  `json:"exempt"`
}

type CreditService interface {
	GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error)
	// Award and Deduct return the balance after the mutation.
	Award(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (int64, error)
	// Deduct returns quota.ErrInsufficientCredits when the balance is short.
	Deduct(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)
	CheckCredits(ctx context.Context, userID, tier string, amount int64) (*CreditCheck, error)
}

type creditService struct {
	repo    repository.CreditRepository
	limits  *config.Limits
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewCreditService(repo repository.CreditRepository, limits *config.Limits, m *metrics.Metrics, logger zerolog.Logger) CreditService {
	return &creditService{
		repo:    repo,
		limits:  limits,
		metrics: m,
		logger:  logger.With().Str("service", "CreditService").Logger(),
	}
}

func (s *creditService) GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

func (s *creditService) Award(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	t, err := s.repo.Award(ctx, userID, amount, reason, metadata)
	if err != nil {
		return 0, fmt.Errorf("award credits: %w", err)
	}
	s.metrics.Credit(string(model.TransactionAward), amount)
	s.logger.Info().Str("user_id", userID).Int64("amount", amount).Str("reason", reason).Int64("balance", t.BalanceAfter).Msg("Credits awarded")
	return t.BalanceAfter, nil
}

func (s *creditService) Deduct(ctx context.Context, userID string, amount int64, reason string, metadata map[string]any) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	t, err := s.repo.Deduct(ctx, userID, amount, reason, metadata)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return 0, quota.Reject(quota.ReasonInsufficientCredits, 0, "Insufficient credits. This requires %d credits.", amount)
	}
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}
	s.metrics.Credit(string(model.TransactionDeduction), amount)
	s.logger.Debug().Str("user_id", userID).Int64("amount", amount).Str("reason", reason).Int64("balance", t.BalanceAfter).Msg("Credits deducted")
	return t.BalanceAfter, nil
}

func (s *creditService) History(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.History(ctx, userID, limit)
}

func (s *creditService) CheckCredits(ctx context.Context, userID, tier string, amount int64) (*CreditCheck, error) {
	if !s.limits.Tier(tier).NeedsCredits {
		return &CreditCheck{HasCredits: true, Exempt: true}, nil
	}
	b, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check credits: %w", err)
	}
	return &CreditCheck{HasCredits: b.Balance >= amount, Balance: b.Balance}, nil
}
