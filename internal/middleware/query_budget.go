package middleware

import (
	"net/http"

	"crystalgate/internal/metrics"
	"crystalgate/internal/querybudget"

	"github.com/rs/zerolog"
)

// QueryBudget attaches a fresh querybudget.Guard to every request and reports its usage afterwards.
func QueryBudget(max int, m *metrics.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g := querybudget.New(max)
			next.ServeHTTP(w, r.WithContext(querybudget.WithGuard(r.Context(), g)))

			stats := g.Stats()
			m.StoreOps(stats.Total)
			if stats.Total > stats.Max {
				logger.Error().
					Str("uri", r.URL.RequestURI()).
					Int("total", stats.Total).
					Int("max", stats.Max).
					Interface("ops", stats.Ops).
					Msg("Query budget exceeded")
			}
		})
	}
}
