/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zerolog request log + Prometheus request metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the supervisor UI

ROUTE GROUPS:
  /api/brokers/*         Broker registry and production
  /api/ranking           Production ranking
  /api/distributions/*   Preview, confirm, residual
  /api/cycles/*          Cycle closing and history
  /api/fulfillment       Balance vs delivered
  /api/partners/*        Lead sellers
  /api/leads/*           Lead registration and status
  /api/notifications/*   Follow-up alerts
  /api/scenarios/*       Demo scenarios
  /healthz, /metrics     Operations

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/lead-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log, h.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/brokers", func(r chi.Router) {
			r.Get("/", h.ListBrokers)
			r.Post("/", h.CreateBroker)
			r.Get("/{id}", h.GetBroker)
			r.Put("/{id}", h.UpdateBroker)
			r.Delete("/{id}", h.DeleteBroker)
			r.Post("/{id}/production", h.AddProduction)
		})
		r.Get("/ranking", h.Ranking)

		r.Route("/distributions", func(r chi.Router) {
			r.Get("/", h.ListDistributions)
			r.Post("/", h.ConfirmDistribution)
			r.Post("/preview", h.PreviewDistribution)
			r.Get("/{id}", h.GetDistribution)
			r.Post("/{id}/residual", h.AssignResidual)
		})

		r.Route("/cycles", func(r chi.Router) {
			r.Post("/close", h.CloseCycle)
			r.Get("/history", h.CycleHistory)
		})
		r.Get("/fulfillment", h.Fulfillment)

		r.Route("/partners", func(r chi.Router) {
			r.Get("/", h.ListPartners)
			r.Post("/", h.CreatePartner)
			r.Delete("/{id}", h.DeletePartner)
		})

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", h.ListLeads)
			r.Post("/", h.CreateLead)
			r.Get("/{id}", h.GetLead)
			r.Put("/{id}/status", h.UpdateLeadStatus)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})
		r.Post("/followups/run", h.RunFollowUps)

		r.Get("/transactions", h.ListTransactions)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs every request with zerolog and records it in the
// HTTP metrics under its route pattern.
func requestLogger(log zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				took := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				m.HTTPRequest(r.Method, route, status, took)

				event := log.Debug()
				switch {
				case status >= 500:
					event = log.Error()
				case status >= 400:
					event = log.Warn()
				}
				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", took).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("http request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
