package router

import (
	"net/http"
	"os"
	"strings"

	"crystalgate/internal/api/v1/handler"
	"crystalgate/internal/config"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// identifyMaxBodyBytes fits the largest per-plan image once base64 encoded.
const identifyMaxBodyBytes = 4 << 20

// SetupHumaAPI creates a Huma API instance
func SetupHumaAPI(
	cfg *config.Config,
	authMiddleware func(http.Handler) http.Handler,
	logger zerolog.Logger,
) (*chi.Mux, huma.API) {
	chiRouter := chi.NewRouter()

	chiRouter.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip all auth for OpenAPI docs endpoint. Under Mount the path left to route is in RoutePath.
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
				path = rctx.RoutePath
			}
			if path == "/openapi.json" || path == "/openapi.yaml" || path == "/docs" || strings.HasPrefix(path, "/schemas") {
				next.ServeHTTP(w, r)
				return
			}
			authMiddleware(next).ServeHTTP(w, r)
		})
	})

	version := os.Getenv("GIT_COMMIT_SHA")
	if version == "" {
		version = "development"
	}

	humaConfig := huma.DefaultConfig("Crystalgate API v1", version)
	humaConfig.Info.Description = "Crystal identification with per-plan quotas, credits and spend limits"
	humaConfig.Servers = []*huma.Server{{URL: cfg.APIBaseURL}}

	api := humachi.New(chiRouter, humaConfig)

	logger.Info().Str("version", version).Msg("Huma API initialized for /v1")
	return chiRouter, api
}

// RegisterRoutes registers all Huma operations
func RegisterRoutes(
	api huma.API,
	crystalHandler *handler.CrystalHandler,
	accountHandler *handler.AccountHandler,
	dreamHandler *handler.DreamHandler,
	billingHandler *handler.BillingHandler,
	logger zerolog.Logger,
) {
	// ========== GATED AI OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID:  "identifyCrystal",
		Method:       http.MethodPost,
		Path:         "/identify",
		Summary:      "Identify a crystal",
		Description:  "Identifies the crystal in a base64 encoded image. Subject to rate, duplicate, spend and credit limits.",
		Tags:         []string{"crystals"},
		MaxBodyBytes: identifyMaxBodyBytes,
	}, crystalHandler.Identify)

	huma.Register(api, huma.Operation{
		OperationID: "listIdentifications",
		Method:      http.MethodGet,
		Path:        "/identifications",
		Summary:     "List identifications",
		Description: "Lists the authenticated user's identifications, most recent first",
		Tags:        []string{"crystals"},
	}, crystalHandler.GetIdentificationHistory)

	huma.Register(api, huma.Operation{
		OperationID: "crystalGuidance",
		Method:      http.MethodPost,
		Path:        "/guidance",
		Summary:     "Ask for crystal guidance",
		Description: "Answers a question about crystals. Subject to rate, duplicate, spend and credit limits.",
		Tags:        []string{"crystals"},
	}, crystalHandler.Guidance)

	huma.Register(api, huma.Operation{
		OperationID: "getUsage",
		Method:      http.MethodGet,
		Path:        "/usage",
		Summary:     "Get usage",
		Description: "Reports spend and request counts against the user's plan limits",
		Tags:        []string{"usage"},
	}, crystalHandler.GetUsage)

	huma.Register(api, huma.Operation{
		OperationID: "interpretDream",
		Method:      http.MethodPost,
		Path:        "/dreams",
		Summary:     "Interpret a dream",
		Description: "Interprets a dream with crystal suggestions and saves it to the journal. Subject to daily, spend and credit limits.",
		Tags:        []string{"dreams"},
	}, dreamHandler.InterpretDream)

	huma.Register(api, huma.Operation{
		OperationID: "listDreams",
		Method:      http.MethodGet,
		Path:        "/dreams",
		Summary:     "List dreams",
		Description: "Lists the authenticated user's dream journal, most recent first",
		Tags:        []string{"dreams"},
	}, dreamHandler.ListDreams)

	// ========== ACCOUNT OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID: "getUser",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Get user profile",
		Description: "Retrieves the authenticated user's plan, creating the user on first access",
		Tags:        []string{"users"},
	}, accountHandler.GetUser)

	huma.Register(api, huma.Operation{
		OperationID: "deleteAccount",
		Method:      http.MethodDelete,
		Path:        "/account",
		Summary:     "Delete account",
		Description: "Deletes the user with their credits, quota windows, usage, identifications, collection, streak and dreams",
		Tags:        []string{"users"},
	}, accountHandler.DeleteAccount)

	huma.Register(api, huma.Operation{
		OperationID: "getCredits",
		Method:      http.MethodGet,
		Path:        "/credits",
		Summary:     "Get credit balance",
		Tags:        []string{"credits"},
	}, accountHandler.GetCredits)

	huma.Register(api, huma.Operation{
		OperationID: "getCreditHistory",
		Method:      http.MethodGet,
		Path:        "/credits/history",
		Summary:     "Get credit history",
		Description: "Lists credit transactions, most recent first",
		Tags:        []string{"credits"},
	}, accountHandler.GetCreditHistory)

	huma.Register(api, huma.Operation{
		OperationID: "checkIn",
		Method:      http.MethodPost,
		Path:        "/checkin",
		Summary:     "Daily check-in",
		Description: "Records today's check-in, extends the streak and awards credits",
		Tags:        []string{"engagement"},
	}, accountHandler.CheckIn)

	huma.Register(api, huma.Operation{
		OperationID:   "addToCollection",
		Method:        http.MethodPost,
		Path:          "/collection",
		Summary:       "Add a crystal to the collection",
		Tags:          []string{"collection"},
		DefaultStatus: http.StatusCreated,
	}, accountHandler.AddToCollection)

	huma.Register(api, huma.Operation{
		OperationID: "listCollection",
		Method:      http.MethodGet,
		Path:        "/collection",
		Summary:     "List the collection",
		Tags:        []string{"collection"},
	}, accountHandler.ListCollection)

	// ========== BILLING OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID: "createCheckoutSession",
		Method:      http.MethodPost,
		Path:        "/billing/checkout",
		Summary:     "Start a plan checkout",
		Description: "Creates a Stripe Checkout session for a paid plan and returns its URL",
		Tags:        []string{"billing"},
	}, billingHandler.Checkout)

	huma.Register(api, huma.Operation{
		OperationID: "createPortalSession",
		Method:      http.MethodPost,
		Path:        "/billing/portal",
		Summary:     "Open the billing portal",
		Tags:        []string{"billing"},
	}, billingHandler.Portal)

	logger.Info().Msg("All operations registered successfully")
}
