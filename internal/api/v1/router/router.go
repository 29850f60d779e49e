package router

import (
	"net/http"

	"crystalgate/internal/api/v1/handler"
	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/middleware"
	"crystalgate/internal/pubsub"
	"crystalgate/internal/repository"
	"crystalgate/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Dependencies are the stores and external clients the API is built on.
type Dependencies struct {
	Stores    repository.Stores
	Analyzer  service.Analyzer
	Images    service.ImageStore // nil disables archiving
	Publisher pubsub.Publisher
	Metrics   *metrics.Metrics
}

// New wires services and handlers and returns the root HTTP handler.
func New(cfg *config.Config, limits *config.Limits, deps Dependencies, logger zerolog.Logger) http.Handler {
	st := deps.Stores
	m := deps.Metrics
	models := service.ModelSet{Flash: cfg.GeminiModelFlash, Pro: cfg.GeminiModelPro}

	// 1. Quota core
	credits := service.NewCreditService(st.Credits, limits, m, logger)
	alerter := service.NewAlerter(deps.Publisher, cfg.AlertTopic, m, logger)
	rate := service.NewRateLimiter(st.Rate, limits, m, logger)
	dedupe := service.NewDeduplicator(st.Dedupe, limits.Dedupe.Window, m, logger)
	spend := service.NewSpendGovernor(st.Spend, st.Usage, st.Global, st.Dedupe, credits, alerter, limits, m, logger)
	gate := service.NewGate(rate, dedupe, spend, credits, limits, logger)

	// 2. Product services
	userSvc := service.NewUserService(st.Users)
	identifySvc := service.NewIdentifyService(st.Users, st.Identifications, st.Cache, deps.Images, deps.Analyzer, gate, limits, models, cfg.AITimeout, m, logger)
	guidanceSvc := service.NewGuidanceService(st.Users, st.Cache, deps.Analyzer, gate, limits, models, cfg.AITimeout, m, logger)
	usageSvc := service.NewUsageService(spend, rate)
	checkInSvc := service.NewCheckInService(st.Streaks, credits, limits, logger)
	collectionSvc := service.NewCollectionService(st.Collection, limits, logger)
	dreamSvc := service.NewDreamService(st.Users, st.Dreams, deps.Analyzer, gate, models, cfg.AITimeout, m, logger)
	accountSvc := service.NewAccountService(st.Users, st.Accounts, logger)
	subSvc := service.NewSubscriptionService(st.Users, limits, logger)
	stripeSvc := service.NewStripeService(cfg, st.Users, subSvc, rate, logger)

	// 3. Handlers
	crystalHandler := handler.NewCrystalHandler(identifySvc, guidanceSvc, usageSvc, userSvc, logger)
	accountHandler := handler.NewAccountHandler(userSvc, credits, checkInSvc, collectionSvc, accountSvc, limits, logger)
	dreamHandler := handler.NewDreamHandler(dreamSvc, logger)
	billingHandler := handler.NewBillingHandler(stripeSvc, logger)

	// 4. Routes
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	v1, api := SetupHumaAPI(cfg, authMiddleware, logger)
	RegisterRoutes(api, crystalHandler, accountHandler, dreamHandler, billingHandler, logger)

	r := chi.NewRouter()
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.QueryBudget(cfg.QueryBudgetMax, m, logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// Stripe signs the raw body, so the webhook bypasses Huma.
	r.Post("/stripe/webhook", stripeSvc.HandleWebhook)
	r.Mount("/v1", v1)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
