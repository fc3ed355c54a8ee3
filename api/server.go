/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Wires URLs to handlers with chi. Middleware: request ID, zap request
  logging, panic recovery (500 instead of a crash), CORS for the
  configured frontend origins.

ROUTE GROUPS:
  /api/contracts/*   contract registry, facts, derived reads
  /api/facts/*       single-fact corrections

SECURITY NOTE:
  No authentication middleware; the service sits behind the gateway
  that owns auth.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates the router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", h.ListContracts)
			r.Post("/", h.CreateContract)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetState)
				r.Delete("/", h.RetractContract)

				r.Post("/fees", h.RecordFee)
				r.Post("/payments", h.RecordPayment)
				r.Post("/disbursements", h.RecordDisbursement)
				r.Post("/deposits", h.RecordDeposit)
				r.Post("/allocations", h.RecordAllocation)
				r.Post("/write-off", h.RecordWriteOff)
				r.Post("/schedule", h.ApplySchedule)
				r.Post("/adjust-profit", h.AdjustProfit)

				r.Post("/preview", h.Preview)
				r.Get("/settlement", h.Settlement)
				r.Get("/history", h.History)
			})
		})

		r.Route("/facts", func(r chi.Router) {
			r.Delete("/{factID}", h.RetractFact)
		})
	})

	return r
}

// requestLogger logs method, path, status and duration per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
