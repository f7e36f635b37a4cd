package core

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the global middleware chain and the route tree.
//
// Middleware ordering:
//  1. Recoverer      - outermost, catches all panics.
//  2. RequestID      - correlation ID before anything logs.
//  3. RequestLogger  - structured request logs.
//  4. Auth           - resolves the Actor (v1 routes only).
//  5. RateLimit      - per-user budget, needs the Actor.
//
// Health endpoints stay outside the v1 group so probes need no credentials.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/health/worker", s.HandleWorkerHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		r.Use(s.RateLimitMiddleware)
		for _, register := range s.V1Routes {
			register(r)
		}
	})
}
