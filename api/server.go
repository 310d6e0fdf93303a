/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for booking and gate frontends

ROUTE GROUPS:
  /api/availability     Slot headroom
  /api/reservations/*   Booking lifecycle
  /api/holders/*        Holder history
  /api/admissions/*     Gate scanning
  /api/principals/*     Holder directory
  /api/admin/*          Operational endpoints

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/availability", h.GetAvailability)

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Put("/{id}/cancel", h.CancelReservation)
			r.Get("/{id}/redemptions", h.ListRedemptions)
		})

		// Holder routes
		r.Route("/holders", func(r chi.Router) {
			r.Get("/{id}/reservations", h.ListHolderReservations)
		})

		// Gate routes
		r.Route("/admissions", func(r chi.Router) {
			r.Post("/scan", h.ScanCredential)
		})

		// Principal routes
		r.Route("/principals", func(r chi.Router) {
			r.Post("/", h.RegisterPrincipal)
			r.Get("/{id}", h.GetPrincipal)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	return r
}
