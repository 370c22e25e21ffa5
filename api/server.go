/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the staff consoles

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

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/ticket-types/{id}", func(r chi.Router) {
			r.Post("/sell", h.SellTickets)
			r.Get("/tickets", h.TicketsByType)
		})

		r.Route("/tickets/{id}", func(r chi.Router) {
			r.Get("/", h.GetTicket)
			r.Post("/cancel", h.CancelTicket)
			r.Post("/nominate", h.Nominate)
		})

		// Public self-service path: the QR code is the credential.
		r.Post("/public/nominate", h.NominateByQR)

		r.Route("/wristbands/{uid}", func(r chi.Router) {
			r.Get("/", h.GetWristband)
			r.Get("/statement", h.GetStatement)
			r.Post("/associate", h.Associate)
			r.Post("/recharge", h.Recharge)
			r.Post("/consume", h.Consume)
			r.Post("/deactivate", h.Deactivate)
		})

		r.Route("/festivals", func(r chi.Router) {
			r.Post("/", h.CreateFestival)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetFestival)
				r.Post("/state", h.ChangeFestivalState)
				r.Post("/ticket-types", h.CreateTicketType)
				r.Get("/wristbands", h.WristbandsByFestival)
			})
		})
	})

	return r
}
