// Package core provides the API chassis for the ThreatWatch service. It
// builds the chi router and enforces the cross-cutting concerns -- request
// identity, logging, authentication, and rate limiting -- before requests
// reach the domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/config"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/ratelimit"
	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// Authenticator resolves an Authorization header value to an Actor.
// Satisfied by *auth.Verifier; injected as an interface for testability.
type Authenticator interface {
	FromAuthorizationHeader(header string) (types.Actor, error)
}

// RateLimiter checks one request against a fixed-window budget.
// Satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, scope, id string) (ratelimit.Result, error)
	Limit() int
}

// Pinger reports whether a backing service is reachable. *pgxpool.Pool
// satisfies it directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouteRegistrar mounts a group of domain handler routes on the v1 router.
// The indirection keeps handler packages from importing core's router setup.
type RouteRegistrar func(r chi.Router)

// Server holds the API dependencies and the router they are mounted on.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Authenticator Authenticator
	Limiter       RateLimiter
	DB            Pinger
	WorkerHealth  *WorkerHealth

	V1Routes []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the required dependencies and prepares the router.
// Routes are mounted separately via MountRoutes so tests can customize
// registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
