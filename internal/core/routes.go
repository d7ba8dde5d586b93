package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft timeout applied to request contexts when
// the configuration does not specify one.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs. X-Signature carries the webhook HMAC; logging it would let
// anyone with log access replay deliveries.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Signature",
}

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the authenticated /v1 group, and the public routes (health check,
// webhook intake).
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", s.mountV1)

	s.router.Get("/health", s.HandleHealth)
	for _, registrar := range s.PublicRouteRegistrars {
		registrar(s.router)
	}
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer       - Catches panics; outermost to catch all failures.
//  2. ContextTimeout  - Sets a soft deadline on every request.
//  3. RequestID       - Generates/propagates correlation ID for tracing.
//  4. SecurityHeaders - Ensures all responses include security headers.
//  5. RequestLogger   - Structured logging (redacted headers).
//  6. CORS            - Browser security headers.
//  7. Auth            - Resolves Actor for everything outside authPublicPaths.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.AuthMiddleware)
}

// mountV1 registers all v1 endpoints. Domain handler routes are registered
// via V1RouteRegistrars, populated by the application entry point. This
// indirection avoids import cycles between core and handler packages.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// requestTimeout returns the configured request timeout, falling back to the
// default when the config does not specify one.
func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}
