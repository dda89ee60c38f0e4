/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/books/*         Catalog and per-book reservation queues
  /api/authors/*       Author management
  /api/genres/*        Genre management
  /api/members/*       Membership and loan history
  /api/loans/*         Checkout, return, overdue reporting
  /api/reservations/*  Reserve and cancel
  /api/admin/*         Snapshot export/import
  /api/scenarios/*     Demo data loaders

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
		// Catalog routes
		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Post("/", h.CreateBook)
			r.Get("/{id}", h.GetBook)
			r.Delete("/{id}", h.DeleteBook)
			r.Post("/{id}/stock", h.AddStock)
			r.Get("/{id}/reservations", h.ListBookReservations)
		})

		r.Route("/authors", func(r chi.Router) {
			r.Get("/", h.ListAuthors)
			r.Post("/", h.CreateAuthor)
			r.Delete("/{id}", h.DeleteAuthor)
		})

		r.Route("/genres", func(r chi.Router) {
			r.Get("/", h.ListGenres)
			r.Post("/", h.CreateGenre)
			r.Delete("/{id}", h.DeleteGenre)
		})

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.EnrollMember)
			r.Get("/{id}", h.GetMember)
			r.Delete("/{id}", h.DeleteMember)
			r.Get("/{id}/loans", h.ListMemberLoans)
		})

		// Lifecycle routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.Checkout)
			r.Get("/overdue", h.ListOverdueLoans)
			r.Get("/{id}", h.GetLoan)
			r.Post("/{id}/return", h.Return)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Delete("/{id}", h.CancelReservation)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/snapshot", h.ExportSnapshot)
			r.Post("/snapshot", h.ImportSnapshot)
		})

		// Demo scenario routes (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
