package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subgate/internal/types"
)

var _ IdentityDirectory = (*IdentityClient)(nil)

// IdentityClientConfig holds the configuration for creating an IdentityClient.
type IdentityClientConfig struct {
	BaseURL string
	APIKey  string
	Logger  *slog.Logger
}

// IdentityClient implements IdentityDirectory against the identity provider's
// admin REST API. The directory is the system of record for identities and
// their custom-claims documents; this client only reads identities, rewrites
// claims, and verifies ID tokens.
//
// Endpoints:
//
//	GET  /users?email=<email>        -> identity handle + current claims
//	PUT  /users/{id}/claims          -> replace the claims document
//	POST /tokens/verify              -> resolve a bearer ID token to a user
type IdentityClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewIdentityClient creates a new IdentityClient.
func NewIdentityClient(httpClient *http.Client, cfg IdentityClientConfig) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"identity-directory",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    250 * time.Millisecond,
			MaxWait:    2 * time.Second,
		},
		"SubGate/1.0",
	)

	return &IdentityClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// NewIdentityClientWithBase creates an IdentityClient with a pre-configured
// BaseClient, for tests that need to control retry and sleep behavior.
func NewIdentityClientWithBase(base *BaseClient, cfg IdentityClientConfig) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IdentityClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type identityUserResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CustomClaims map[string]any `json:"custom_claims"`
}

type setClaimsRequest struct {
	CustomClaims map[string]any `json:"custom_claims"`
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type verifyTokenResponse struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// ---------------------------------------------------------------------------
// IdentityDirectory Implementation
// ---------------------------------------------------------------------------

// GetByEmail resolves an email address to an identity handle including its
// current custom claims. A directory miss is a not_found_identity error: it
// indicates a data inconsistency between the payment provider's record and
// the directory, and is reported rather than retried.
func (c *IdentityClient) GetByEmail(ctx context.Context, email string) (*types.Identity, error) {
	endpoint := c.baseURL + "/users?email=" + url.QueryEscape(email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build identity lookup request",
			err,
		)
	}
	c.setHeaders(req)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapDirectoryError("GetByEmail", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppError(
			types.ErrCodeNotFoundIdentity,
			"no identity exists for the given email",
			nil,
		)
	case resp.StatusCode != http.StatusOK:
		c.logger.ErrorContext(ctx, "identity lookup returned non-success status",
			"status", resp.StatusCode,
		)
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"identity lookup failed",
			nil,
		)
	}

	var user identityUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to decode identity lookup response",
			err,
		)
	}

	if user.ID == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"identity lookup response is missing the user id",
			nil,
		)
	}

	claims := user.CustomClaims
	if claims == nil {
		claims = map[string]any{}
	}

	return &types.Identity{
		ID:     user.ID,
		Email:  user.Email,
		Claims: claims,
	}, nil
}

// SetClaims replaces the identity's custom-claims document. The directory
// applies the write atomically per identity; merge semantics are the caller's
// responsibility (read-merge-write).
func (c *IdentityClient) SetClaims(ctx context.Context, identityID string, claims map[string]any) error {
	body, err := json.Marshal(setClaimsRequest{CustomClaims: claims})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to encode claims payload",
			err,
		)
	}

	endpoint := c.baseURL + "/users/" + url.PathEscape(identityID) + "/claims"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build claims update request",
			err,
		)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return c.wrapDirectoryError("SetClaims", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundIdentity,
			"identity disappeared before the claims update",
			nil,
		)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent:
		c.logger.ErrorContext(ctx, "claims update returned non-success status",
			"status", resp.StatusCode,
			"identity_id", identityID,
		)
		return types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"claims update failed",
			nil,
		)
	}

	return nil
}

// VerifyToken resolves a bearer ID token to the caller's identity attributes.
// Invalid or expired tokens map to auth error codes so the middleware can
// answer 401 without leaking directory detail.
func (c *IdentityClient) VerifyToken(ctx context.Context, token string) (*types.Actor, error) {
	body, err := json.Marshal(verifyTokenRequest{Token: token})
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to encode token verification payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tokens/verify", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build token verification request",
			err,
		)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapDirectoryError("VerifyToken", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through to decoding below.
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, types.NewAppError(
			types.ErrCodeAuthTokenInvalid,
			"token verification rejected the token",
			nil,
		)
	case http.StatusGone:
		return nil, types.NewAppError(
			types.ErrCodeAuthTokenExpired,
			"token has expired",
			nil,
		)
	default:
		c.logger.ErrorContext(ctx, "token verification returned non-success status",
			"status", resp.StatusCode,
		)
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"token verification failed",
			nil,
		)
	}

	var out verifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to decode token verification response",
			err,
		)
	}

	if out.UserID == "" {
		return nil, types.NewAppError(
			types.ErrCodeAuthTokenInvalid,
			"token verification response is missing the user id",
			nil,
		)
	}

	return &types.Actor{
		ID:            out.UserID,
		Email:         out.Email,
		EmailVerified: out.EmailVerified,
	}, nil
}

// setHeaders applies the admin API key to a directory request.
func (c *IdentityClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// wrapDirectoryError maps BaseClient transport failures onto the identity
// upstream code while preserving the chain for errors.As.
func (c *IdentityClient) wrapDirectoryError(op string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamIdentity,
		"identity directory request failed: "+op,
		err,
	)
}
