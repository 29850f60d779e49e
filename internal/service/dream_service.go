package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/model"
	"crystalgate/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidDream = errors.New("dream content must be between 10 and 5000 characters")

const (
	minDreamLength     = 10
	maxDreamLength     = 5000
	maxDreamCrystals   = 5
	defaultDreamsItems = 20
)

type DreamInput struct {
	Content      string
	UserCrystals []string
	Mood         string
	MoonPhase    string
	// DreamDate defaults to now.
	DreamDate *time.Time
}

type DreamResult struct {
	Entry            *model.DreamEntry
	Tier             string
	CreditsCharged   int64
	CreditsRemaining *int64
}

// DreamService interprets dream journal entries through the quota gates.
type DreamService struct {
	users     repository.UserRepository
	dreams    repository.DreamRepository
	analyzer  Analyzer
	gate      *Gate
	models    ModelSet
	aiTimeout time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDreamService(users repository.UserRepository, dreams repository.DreamRepository, analyzer Analyzer, gate *Gate, models ModelSet, aiTimeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *DreamService {
	return &DreamService{
		users:     users,
		dreams:    dreams,
		analyzer:  analyzer,
		gate:      gate,
		models:    models,
		aiTimeout: aiTimeout,
		metrics:   m,
		logger:    logger.With().Str("service", "DreamService").Logger(),
		now:       time.Now,
	}
}

// Interpret runs one dream through the analyzer and stores it in the journal. Dreams are never
// served from cache; the same text within the dedupe window is rejected as a duplicate.
func (s *DreamService) Interpret(ctx context.Context, userID string, in DreamInput) (*DreamResult, error) {
	content := strings.TrimSpace(in.Content)
	if n := utf8.RuneCountInString(content); n < minDreamLength || n > maxDreamLength {
		return nil, ErrInvalidDream
	}
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	gateReq := GateRequest{UserID: userID, Tier: user.Tier, Action: config.ActionDream, Operation: config.OpDreamAnalysis, Payload: []byte(normalizeQuestion(content))}
	if err := s.gate.Admit(ctx, gateReq); err != nil {
		return nil, err
	}

	start := time.Now()
	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	interp, err := s.analyzer.InterpretDream(aiCtx, DreamRequest{
		Content:      content,
		UserCrystals: in.UserCrystals,
		Mood:         in.Mood,
		MoonPhase:    in.MoonPhase,
		Model:        s.models.Flash,
	})
	cancel()
	latency := time.Since(start)
	s.metrics.AICall(config.OpDreamAnalysis, latency.Seconds(), err)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Dream interpretation failed")
		s.gate.Release(ctx, gateReq)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if len(interp.CrystalSuggestions) > maxDreamCrystals {
		interp.CrystalSuggestions = interp.CrystalSuggestions[:maxDreamCrystals]
	}
	analysis, err := json.Marshal(interp.Analysis)
	if err != nil {
		s.gate.Release(ctx, gateReq)
		return nil, fmt.Errorf("encode dream analysis: %w", err)
	}

	entry := &model.DreamEntry{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Content:            content,
		Analysis:           string(analysis),
		Affirmation:        interp.Affirmation,
		CrystalSuggestions: interp.CrystalSuggestions,
		CrystalsUsed:       in.UserCrystals,
		DreamDate:          s.now(),
	}
	if in.DreamDate != nil {
		entry.DreamDate = *in.DreamDate
	}
	if in.Mood != "" {
		entry.Mood = &in.Mood
	}
	if in.MoonPhase != "" {
		entry.MoonPhase = &in.MoonPhase
	}
	if err := s.dreams.Create(ctx, entry); err != nil {
		s.gate.Release(ctx, gateReq)
		return nil, fmt.Errorf("save dream entry: %w", err)
	}

	meta := map[string]any{"model": s.models.Flash, "input_tokens": interp.Usage.InputTokens, "output_tokens": interp.Usage.OutputTokens, "dream_id": entry.ID}
	settled := s.gate.Settle(ctx, gateReq, interp.Usage.CostMicros, latency, meta)
	return &DreamResult{
		Entry:            entry,
		Tier:             user.Tier,
		CreditsCharged:   settled.CreditsCharged,
		CreditsRemaining: settled.CreditsRemaining,
	}, nil
}

// History returns the user's most recent dream entries.
func (s *DreamService) History(ctx context.Context, userID string, limit int) ([]model.DreamEntry, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultDreamsItems
	}
	return s.dreams.ListByUser(ctx, userID, limit)
}
