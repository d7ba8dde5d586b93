// Package core provides the API chassis for the SubGate service. It builds
// the chi router and enforces cross-cutting concerns -- security, logging,
// request correlation, and error handling -- before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subgate/internal/config"
	"subgate/internal/types"
)

// Authenticator resolves a bearer token to an Actor. The production
// implementation delegates to the identity directory; tests inject fakes.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RouteRegistrar mounts a group of handler routes onto a router. Handlers
// register themselves through registrars so core never imports handler
// packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the HTTP API, allowing injection
// during testing and distinct configuration for different environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Authenticator Authenticator

	// HealthProbes are executed by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount authenticated routes under /v1.
	// PublicRouteRegistrars mount routes outside /v1 that skip auth,
	// such as the provider webhook intake.
	V1RouteRegistrars     []RouteRegistrar
	PublicRouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the server chassis. The caller mounts routes (via
// MountRoutes) after construction; this separation lets tests customize
// route registration.
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

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
