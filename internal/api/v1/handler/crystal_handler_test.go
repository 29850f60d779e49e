package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/middleware"
	"crystalgate/internal/pubsub"
	"crystalgate/internal/repository"
	"crystalgate/internal/repository/memstore"
	"crystalgate/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAnalyzer struct {
	calls atomic.Int32
}

func (a *countingAnalyzer) AnalyzeImage(context.Context, service.ImageAnalysisRequest) (*service.CrystalAnalysis, error) {
	a.calls.Add(1)
	return &service.CrystalAnalysis{CrystalName: "Citrine", Confidence: 0.9, Usage: service.AnalysisUsage{CostMicros: 700}}, nil
}

func (a *countingAnalyzer) Guidance(context.Context, string, string) (*service.GuidanceAnswer, error) {
	a.calls.Add(1)
	return &service.GuidanceAnswer{Answer: "Cleanse it under moonlight."}, nil
}

func (a *countingAnalyzer) InterpretDream(context.Context, service.DreamRequest) (*service.DreamInterpretation, error) {
	a.calls.Add(1)
	out := &service.DreamInterpretation{Affirmation: "I trust my path."}
	out.Analysis.Summary = "A dream about flight."
	return out, nil
}

func newCrystalAPI(t *testing.T, userID string) (humatest.TestAPI, repository.Stores, *countingAnalyzer) {
	t.Helper()
	limits := config.DefaultLimits()
	st := memstore.NewStores(limits.Credits.SignupGrant)
	m := metrics.New()
	logger := zerolog.Nop()
	analyzer := &countingAnalyzer{}

	credits := service.NewCreditService(st.Credits, limits, m, logger)
	alerter := service.NewAlerter(pubsub.NewLogPublisher(logger), "spend-alerts", m, logger)
	spend := service.NewSpendGovernor(st.Spend, st.Usage, st.Global, st.Dedupe, credits, alerter, limits, m, logger)
	rate := service.NewRateLimiter(st.Rate, limits, m, logger)
	gate := service.NewGate(rate, service.NewDeduplicator(st.Dedupe, limits.Dedupe.Window, m, logger), spend, credits, limits, logger)
	models := service.ModelSet{Flash: "gemini-2.5-flash", Pro: "gemini-2.5-pro"}
	h := NewCrystalHandler(
		service.NewIdentifyService(st.Users, st.Identifications, st.Cache, nil, analyzer, gate, limits, models, time.Second, m, logger),
		service.NewGuidanceService(st.Users, st.Cache, analyzer, gate, limits, models, time.Second, m, logger),
		service.NewUsageService(spend, rate),
		service.NewUserService(st.Users),
		logger,
	)
	dreams := NewDreamHandler(service.NewDreamService(st.Users, st.Dreams, analyzer, gate, models, time.Second, m, logger), logger)

	_, api := humatest.New(t)
	api.UseMiddleware(func(ctx huma.Context, next func(huma.Context)) {
		ctx = huma.WithValue(ctx, middleware.UserContextKey, userID)
		next(ctx)
	})
	huma.Register(api, huma.Operation{OperationID: "identifyCrystal", Method: http.MethodPost, Path: "/identify", MaxBodyBytes: 4 << 20}, h.Identify)
	huma.Register(api, huma.Operation{OperationID: "interpretDream", Method: http.MethodPost, Path: "/dreams"}, dreams.InterpretDream)
	huma.Register(api, huma.Operation{OperationID: "listDreams", Method: http.MethodGet, Path: "/dreams"}, dreams.ListDreams)
	return api, st, analyzer
}

func pngOfSize(size int) string {
	buf := make([]byte, size)
	copy(buf, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return base64.StdEncoding.EncodeToString(buf)
}

func TestIdentifyOversizedImageIs413(t *testing.T) {
	api, st, analyzer := newCrystalAPI(t, "u1")

	resp := api.Post("/identify", map[string]any{"image": pngOfSize(250 * 1024)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), "exceeds the size allowed")
	assert.Zero(t, analyzer.calls.Load())

	bal, err := st.Credits.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal.Balance)

	resp = api.Post("/identify", map[string]any{"image": pngOfSize(100 * 1024)})
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestInterpretDreamChargesTwoCredits(t *testing.T) {
	api, _, analyzer := newCrystalAPI(t, "u1")

	resp := api.Post("/dreams", map[string]any{"dream_content": "I was flying over a purple ocean at night.", "user_crystals": []string{"Amethyst"}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"credits_charged":2`)
	assert.Contains(t, resp.Body.String(), `"credits_remaining":13`)
	assert.Contains(t, resp.Body.String(), `"affirmation":"I trust my path."`)
	assert.Equal(t, int32(1), analyzer.calls.Load())

	resp = api.Post("/dreams", map[string]any{"dream_content": "too short"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = api.Get("/dreams")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "purple ocean")
}
