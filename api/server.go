/*
server.go - Router and middleware configuration

ROUTER: chi, with the standard middleware stack (request id, logging,
panic recovery) plus CORS for the UI hosts of sibling modules.

All routes live under /api; the ledger exposes no other surface. Note the
route table itself encodes the append-only contract: there is no PUT, no
PATCH and no DELETE on /api/movements.
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires all routes and middleware.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/movements", func(r chi.Router) {
			r.Post("/", h.RecordMovement)
			r.Get("/", h.MovementHistory)
			r.Post("/{id}/reverse", h.ReverseMovement)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", h.CurrentStock)
			r.Get("/history", h.HistoricalStock)
		})

		r.Get("/trace/{reference}", h.TraceReference)
		r.Post("/numbers", h.GenerateNumber)
	})

	return r
}
