package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/model"
	"crystalgate/internal/repository/memstore"

	"github.com/rs/zerolog"
)

var t0 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []model.SpendAlert
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload []byte) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	var a model.SpendAlert
	if err := json.Unmarshal(payload, &a); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return a.ID, nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.alerts))
	for _, a := range p.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type stubAnalyzer struct {
	mu       sync.Mutex
	analysis CrystalAnalysis
	// byModel overrides analysis for requests to the named model.
	byModel map[string]CrystalAnalysis
	// modelErr fails requests to the named models.
	modelErr map[string]error
	answer   GuidanceAnswer
	dream    DreamInterpretation
	err      error
	delay    time.Duration
	calls    int
	lastReq  ImageAnalysisRequest
	models   []string
}

func (a *stubAnalyzer) AnalyzeImage(_ context.Context, req ImageAnalysisRequest) (*CrystalAnalysis, error) {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastReq = req
	a.models = append(a.models, req.Model)
	if a.err != nil {
		return nil, a.err
	}
	if err := a.modelErr[req.Model]; err != nil {
		return nil, err
	}
	out := a.analysis
	if o, ok := a.byModel[req.Model]; ok {
		out = o
	}
	return &out, nil
}

func (a *stubAnalyzer) InterpretDream(_ context.Context, req DreamRequest) (*DreamInterpretation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.models = append(a.models, req.Model)
	if a.err != nil {
		return nil, a.err
	}
	out := a.dream
	out.Usage.Model = req.Model
	return &out, nil
}

func (a *stubAnalyzer) Guidance(_ context.Context, _, model string) (*GuidanceAnswer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	out := a.answer
	out.Usage.Model = model
	return &out, nil
}

// harness wires the quota core over in-memory stores with a controllable clock.
type harness struct {
	limits *config.Limits

	users      *memstore.Users
	credits    *memstore.Credits
	spend      *memstore.Spend
	rate       *memstore.Rate
	usage      *memstore.Usage
	idents     *memstore.Identifications
	collection *memstore.Collection
	streaks    *memstore.Streaks
	global     *memstore.Global
	dedupe     *memstore.Dedupe
	cache      *memstore.Cache
	dreamStore *memstore.Dreams

	pub      *recordingPublisher
	analyzer *stubAnalyzer

	creditSvc CreditService
	limiter   *RateLimiter
	dedup     *Deduplicator
	governor  *SpendGovernor
	gate      *Gate
	identify  *IdentifyService
	guidance  *GuidanceService
	dreams    *DreamService
	checkIn   *CheckInService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()
	m := metrics.New()
	h := &harness{
		limits:     config.DefaultLimits(),
		users:      memstore.NewUsers(),
		spend:      memstore.NewSpend(),
		rate:       memstore.NewRate(),
		usage:      memstore.NewUsage(),
		idents:     memstore.NewIdentifications(),
		collection: memstore.NewCollection(),
		streaks:    memstore.NewStreaks(),
		global:     memstore.NewGlobal(),
		dedupe:     memstore.NewDedupe(),
		cache:      memstore.NewCache(),
		dreamStore: memstore.NewDreams(),
		pub:        &recordingPublisher{},
		analyzer: &stubAnalyzer{
			analysis: CrystalAnalysis{CrystalName: "Amethyst", Variety: "Chevron", Confidence: 87, Description: "Purple quartz with banding.",
				Usage: AnalysisUsage{InputTokens: 1200, OutputTokens: 300, CostMicros: 1110}},
			answer: GuidanceAnswer{Answer: "Rinse it in water and let it dry in indirect light.", Usage: AnalysisUsage{InputTokens: 40, OutputTokens: 80, CostMicros: 212}},
			dream: DreamInterpretation{
				CrystalSuggestions: []model.CrystalSuggestion{{Name: "Moonstone", Reason: "Intuition", Usage: "Under the pillow"}},
				Affirmation:        "I welcome what my dreams show me.",
				Usage:              AnalysisUsage{InputTokens: 300, OutputTokens: 500, CostMicros: 1340},
			},
		},
	}
	h.credits = memstore.NewCredits(h.limits.Credits.SignupGrant)

	h.creditSvc = NewCreditService(h.credits, h.limits, m, logger)
	alerter := NewAlerter(h.pub, "spend-alerts", m, logger)
	h.limiter = NewRateLimiter(h.rate, h.limits, m, logger)
	h.dedup = NewDeduplicator(h.dedupe, h.limits.Dedupe.Window, m, logger)
	h.governor = NewSpendGovernor(h.spend, h.usage, h.global, h.dedupe, h.creditSvc, alerter, h.limits, m, logger)
	h.gate = NewGate(h.limiter, h.dedup, h.governor, h.creditSvc, h.limits, logger)
	models := ModelSet{Flash: "gemini-2.5-flash", Pro: "gemini-2.5-pro"}
	h.identify = NewIdentifyService(h.users, h.idents, h.cache, nil, h.analyzer, h.gate, h.limits, models, time.Second, m, logger)
	h.guidance = NewGuidanceService(h.users, h.cache, h.analyzer, h.gate, h.limits, models, time.Second, m, logger)
	h.dreams = NewDreamService(h.users, h.dreamStore, h.analyzer, h.gate, models, time.Second, m, logger)
	h.checkIn = NewCheckInService(h.streaks, h.creditSvc, h.limits, logger)
	h.setNow(t0)
	return h
}

func (h *harness) setNow(now time.Time) {
	clock := func() time.Time { return now }
	h.limiter.now = clock
	h.governor.now = clock
	h.checkIn.now = clock
	h.dreams.now = clock
	h.dedupe.Now = clock
}

func (h *harness) withTier(userID, tier string) {
	h.users.Put(model.User{UserID: userID, Tier: tier, SubscriptionStatus: model.SubscriptionActive})
}
