package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

var ErrInvalidQuestion = errors.New("question must be between 5 and 500 characters")

const (
	minQuestionLength = 5
	maxQuestionLength = 500
	guidanceCacheTTL  = 12 * time.Hour
)

type GuidanceResult struct {
	Answer           string `json:"answer"`
	Operation        string `json:"operation"`
	Model            string `json:"model"`
	Cached           bool   `json:"cached"`
	CreditsCharged   int64  `json:"credits_charged"`
	CreditsRemaining *int64 `json:"credits_remaining,omitempty"`
}

type GuidanceService struct {
	users     repository.UserRepository
	cache     repository.ResponseCache
	analyzer  Analyzer
	gate      *Gate
	limits    *config.Limits
	models    ModelSet
	aiTimeout time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewGuidanceService(users repository.UserRepository, cache repository.ResponseCache, analyzer Analyzer, gate *Gate, limits *config.Limits, models ModelSet, aiTimeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *GuidanceService {
	return &GuidanceService{
		users:     users,
		cache:     cache,
		analyzer:  analyzer,
		gate:      gate,
		limits:    limits,
		models:    models,
		aiTimeout: aiTimeout,
		metrics:   m,
		logger:    logger.With().Str("service", "GuidanceService").Logger(),
	}
}

func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func (s *GuidanceService) Ask(ctx context.Context, userID, question string) (*GuidanceResult, error) {
	question = strings.TrimSpace(question)
	if n := utf8.RuneCountInString(question); n < minQuestionLength || n > maxQuestionLength {
		return nil, ErrInvalidQuestion
	}
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	operation, modelName := config.OpGuidanceFlash, s.models.Flash
	if s.limits.Tier(user.Tier).FullAnalysis {
		operation, modelName = config.OpGuidancePro, s.models.Pro
	}
	normalized := normalizeQuestion(question)
	gateReq := GateRequest{UserID: userID, Tier: user.Tier, Action: config.ActionGuidance, Operation: operation, Payload: []byte(normalized)}
	if err := s.gate.Admit(ctx, gateReq); err != nil {
		return nil, err
	}

	sum := blake3.Sum256([]byte(normalized))
	cacheKey := "guidance:" + operation + ":" + hex.EncodeToString(sum[:16])
	start := time.Now()
	if raw, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		var res GuidanceResult
		if json.Unmarshal(raw, &res) == nil {
			res.Cached = true
			s.gate.RecordCacheHit(ctx, gateReq, time.Since(start))
			return &res, nil
		}
	}

	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	answer, err := s.analyzer.Guidance(aiCtx, question, modelName)
	cancel()
	s.metrics.AICall(operation, time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Guidance call failed")
		s.gate.Release(ctx, gateReq)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	res := &GuidanceResult{Answer: answer.Answer, Operation: operation, Model: modelName}
	if raw, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, cacheKey, raw, guidanceCacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache guidance")
		}
	}

	meta := map[string]any{"model": modelName, "input_tokens": answer.Usage.InputTokens, "output_tokens": answer.Usage.OutputTokens}
	settled := s.gate.Settle(ctx, gateReq, answer.Usage.CostMicros, time.Since(start), meta)
	res.CreditsCharged = settled.CreditsCharged
	res.CreditsRemaining = settled.CreditsRemaining
	return res, nil
}
