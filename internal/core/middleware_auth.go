package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"subgate/internal/types"
)

// authPublicPaths lists URL paths that are exempt from authentication.
// The webhook intake authenticates the provider by signature instead of a
// bearer token, so it bypasses AuthMiddleware entirely.
var authPublicPaths = map[string]bool{
	"/health":                 true,
	"/webhooks/subscriptions": true,
}

// AuthMiddleware wraps handlers requiring authentication.
//
//  1. Extracts the Bearer token from the Authorization header.
//  2. Calls Authenticator.ResolveToken to resolve the token to an Actor.
//  3. Injects the Actor into the request context via types.WithActor.
//  4. Returns 401 Unauthorized on failure with distinct error codes:
//     - auth_unauthenticated: No Authorization header or empty Bearer token.
//     - auth_token_invalid: Token is malformed or rejected by the directory.
//     - auth_token_expired: Token exists but has expired.
//
// If the Authenticator field on Server is nil (e.g., during tests that don't
// inject one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthUnauthenticated, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthUnauthenticated, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}

		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects the format "Bearer <token>" (case-insensitive
// scheme per RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError inspects the error from Authenticator.ResolveToken and
// writes the appropriate 401 response with the correct error code.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.Warn("authentication failed: token expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: token invalid",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	// Generic error: log it but don't leak internal details.
	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response with the given error code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
