package service

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/model"
	"crystalgate/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

var (
	ErrInvalidImage           = errors.New("image must be base64 encoded JPEG, PNG or WebP data")
	ErrImageTooLarge          = errors.New("image exceeds the size allowed for your plan")
	ErrFullAnalysisNotAllowed = errors.New("full analysis requires the pro or founders plan")
	ErrAnalysisFailed         = errors.New("identification failed")
)

const (
	identifyCacheTTL    = 24 * time.Hour
	maxRationaleLength  = 200
	analysisThumbnail   = "thumbnail"
	analysisFull        = "full"
	analysisProgressive = "progressive"
	defaultHistoryItems = 20
)

var allowedImageTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/webp": true}

type IdentifyRequest struct {
	ImageBase64 string
	ForceFull   bool
}

type IdentifyResult struct {
	Identification      *model.Identification
	Tier                string
	Cached              bool
	EstimatedCostMicros int64
	CreditsCharged      int64
	CreditsRemaining    *int64
	// Progressive is set when a low-confidence first pass was re-run on the pro model.
	Progressive bool
}

// ModelSet names the provider models used for cheap and detailed calls.
type ModelSet struct {
	Flash string
	Pro   string
}

type IdentifyService struct {
	users     repository.UserRepository
	idents    repository.IdentificationRepository
	cache     repository.ResponseCache
	images    ImageStore
	analyzer  Analyzer
	gate      *Gate
	limits    *config.Limits
	models    ModelSet
	aiTimeout time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewIdentifyService wires the identify flow. images may be nil to skip archiving.
func NewIdentifyService(
	users repository.UserRepository,
	idents repository.IdentificationRepository,
	cache repository.ResponseCache,
	images ImageStore,
	analyzer Analyzer,
	gate *Gate,
	limits *config.Limits,
	models ModelSet,
	aiTimeout time.Duration,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *IdentifyService {
	return &IdentifyService{
		users:     users,
		idents:    idents,
		cache:     cache,
		images:    images,
		analyzer:  analyzer,
		gate:      gate,
		limits:    limits,
		models:    models,
		aiTimeout: aiTimeout,
		metrics:   m,
		logger:    logger.With().Str("service", "IdentifyService").Logger(),
	}
}

// decodeImage strips an optional data URL prefix and sniffs the content type.
func decodeImage(encoded string) ([]byte, string, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i > 0 {
		encoded = encoded[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(raw) == 0 {
		return nil, "", ErrInvalidImage
	}
	mime := http.DetectContentType(raw)
	if !allowedImageTypes[mime] {
		return nil, "", ErrInvalidImage
	}
	return raw, mime, nil
}

// normalizeConfidence maps percentages onto [0, 1].
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c /= 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func (s *IdentifyService) Identify(ctx context.Context, userID string, req IdentifyRequest) (*IdentifyResult, error) {
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	profile := s.limits.Tier(user.Tier)

	image, mime, err := decodeImage(req.ImageBase64)
	if err != nil {
		return nil, err
	}
	if len(image) > profile.MaxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(image), profile.MaxImageBytes)
	}
	if req.ForceFull && !profile.FullAnalysis {
		return nil, ErrFullAnalysisNotAllowed
	}

	full := profile.FullAnalysis || req.ForceFull
	operation, analysisType, modelName := config.OpThumbnailAnalysis, analysisThumbnail, s.models.Flash
	if full {
		operation, analysisType, modelName = config.OpFullImageAnalysis, analysisFull, s.models.Pro
	}

	gateReq := GateRequest{UserID: userID, Tier: user.Tier, Action: config.ActionIdentify, Operation: operation, Payload: image}
	if err := s.gate.Admit(ctx, gateReq); err != nil {
		return nil, err
	}

	sum := blake3.Sum256(image)
	cacheKey := "identify:" + analysisType + ":" + hex.EncodeToString(sum[:16])
	analysis, cached := s.cachedAnalysis(ctx, cacheKey)

	start := time.Now()
	if !cached {
		aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
		analysis, err = s.analyzer.AnalyzeImage(aiCtx, ImageAnalysisRequest{Image: image, MimeType: mime, Full: full, Model: modelName})
		cancel()
		s.metrics.AICall(operation, time.Since(start).Seconds(), err)
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Str("operation", operation).Msg("Crystal analysis failed")
			s.gate.Release(ctx, gateReq)
			return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		}
		if len(analysis.Raw) == 0 {
			analysis.Raw, _ = json.Marshal(analysis)
		}
		if err := s.cache.Set(ctx, cacheKey, analysis.Raw, identifyCacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache analysis")
		}
	}
	latency := time.Since(start)

	initial, initialModel := analysis, modelName
	var follow *progressiveOutcome
	if !cached && !req.ForceFull && normalizeConfidence(analysis.Confidence) < profile.ProgressiveBelow {
		follow = s.progressive(ctx, userID, user.Tier, image, mime)
		if follow != nil && follow.better(analysis) {
			analysis, analysisType, modelName = follow.analysis, analysisProgressive, s.models.Pro
		}
	}

	ident := &model.Identification{
		ID:                  uuid.NewString(),
		UserID:              userID,
		CrystalName:         analysis.CrystalName,
		Confidence:          normalizeConfidence(analysis.Confidence),
		Description:         truncate(analysis.Description, maxRationaleLength),
		AnalysisType:        analysisType,
		Operation:           operation,
		ModelUsed:           modelName,
		EstimatedCostMicros: s.gate.spend.EstimatedCost(operation),
		Result:              analysis.Raw,
	}
	if ident.CrystalName == "" {
		ident.CrystalName = "Unknown"
	}
	if analysis.Variety != "" {
		v := analysis.Variety
		ident.Variety = &v
	}
	if s.images != nil {
		key, err := s.images.Archive(ctx, userID, ident.ID, image, mime)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to archive identification image")
		} else {
			ident.ImageKey = &key
		}
	}
	if err := s.idents.Create(ctx, ident); err != nil {
		s.gate.Release(ctx, gateReq)
		if follow != nil {
			s.gate.Release(ctx, follow.req)
		}
		return nil, fmt.Errorf("save identification: %w", err)
	}

	result := &IdentifyResult{
		Identification:      ident,
		Tier:                user.Tier,
		Cached:              cached,
		EstimatedCostMicros: ident.EstimatedCostMicros,
		Progressive:         follow != nil,
	}
	if cached {
		// A cache hit made no provider call, so nothing is charged.
		s.gate.RecordCacheHit(ctx, gateReq, latency)
		return result, nil
	}
	if follow != nil {
		meta := map[string]any{"model": s.models.Pro, "input_tokens": follow.analysis.Usage.InputTokens, "output_tokens": follow.analysis.Usage.OutputTokens, "identification_id": ident.ID}
		settled := s.gate.SettleFollowUp(ctx, follow.req, follow.analysis.Usage.CostMicros, follow.latency, meta)
		result.CreditsCharged += settled.CreditsCharged
		result.EstimatedCostMicros += s.gate.spend.EstimatedCost(config.OpProgressiveAnalysis)
	}
	first := initial.Usage
	meta := map[string]any{"model": initialModel, "input_tokens": first.InputTokens, "output_tokens": first.OutputTokens, "identification_id": ident.ID}
	settled := s.gate.Settle(ctx, gateReq, first.CostMicros, latency, meta)
	result.CreditsCharged += settled.CreditsCharged
	result.CreditsRemaining = settled.CreditsRemaining
	return result, nil
}

type progressiveOutcome struct {
	req      GateRequest
	analysis *CrystalAnalysis
	latency  time.Duration
}

func (p *progressiveOutcome) better(first *CrystalAnalysis) bool {
	return normalizeConfidence(p.analysis.Confidence) > normalizeConfidence(first.Confidence)
}

// progressive re-runs a low-confidence identification on the pro model. It is gated by the spend
// governor as its own operation. A rejection or failure keeps the first result and returns nil.
func (s *IdentifyService) progressive(ctx context.Context, userID, tier string, image []byte, mime string) *progressiveOutcome {
	req := GateRequest{UserID: userID, Tier: tier, Action: config.ActionIdentify, Operation: config.OpProgressiveAnalysis}
	if err := s.gate.AdmitFollowUp(ctx, req); err != nil {
		s.logger.Info().Err(err).Str("user_id", userID).Msg("Progressive analysis not admitted, keeping first result")
		return nil
	}
	start := time.Now()
	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	analysis, err := s.analyzer.AnalyzeImage(aiCtx, ImageAnalysisRequest{Image: image, MimeType: mime, Full: true, Model: s.models.Pro})
	cancel()
	s.metrics.AICall(config.OpProgressiveAnalysis, time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Progressive analysis failed, keeping first result")
		s.gate.Release(ctx, req)
		return nil
	}
	if len(analysis.Raw) == 0 {
		analysis.Raw, _ = json.Marshal(analysis)
	}
	return &progressiveOutcome{req: req, analysis: analysis, latency: time.Since(start)}
}

func (s *IdentifyService) cachedAnalysis(ctx context.Context, key string) (*CrystalAnalysis, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Analysis cache unavailable")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var a CrystalAnalysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false
	}
	a.Raw = raw
	return &a, true
}

// History returns the user's most recent identifications.
func (s *IdentifyService) History(ctx context.Context, userID string, limit int) ([]model.Identification, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryItems
	}
	return s.idents.ListByUser(ctx, userID, limit)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
