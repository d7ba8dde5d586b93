package external

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"subgate/internal/types"
)

// providerContentType is the JSON:API media type the payment provider expects.
const providerContentType = "application/vnd.api+json"

// ProviderClientConfig holds the configuration for creating a ProviderClient.
type ProviderClientConfig struct {
	APIKey    string
	StoreID   string
	VariantID string
	BaseURL   string
	Logger    *slog.Logger
}

// ProviderClient implements CheckoutService by making direct HTTP calls to the
// payment provider's REST API through BaseClient. This routes all requests
// through the shared resilience infrastructure (circuit breaker, retries,
// error mapping) and makes testing with httptest straightforward.
type ProviderClient struct {
	base      *BaseClient
	apiKey    string
	storeID   string
	variantID string
	baseURL   string
	logger    *slog.Logger
}

// NewProviderClient creates a new ProviderClient. The httpClient timeout
// bounds each attempt; the BaseClient adds retry and circuit breaking on top.
func NewProviderClient(httpClient *http.Client, cfg ProviderClientConfig) *ProviderClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"payment-provider",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"SubGate/1.0",
	)

	return &ProviderClient{
		base:      base,
		apiKey:    cfg.APIKey,
		storeID:   cfg.StoreID,
		variantID: cfg.VariantID,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:    logger,
	}
}

// NewProviderClientWithBase creates a ProviderClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., a no-op sleep function).
func NewProviderClientWithBase(base *BaseClient, cfg ProviderClientConfig) *ProviderClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ProviderClient{
		base:      base,
		apiKey:    cfg.APIKey,
		storeID:   cfg.StoreID,
		variantID: cfg.VariantID,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// Wire types (provider JSON:API format)
// ---------------------------------------------------------------------------

type checkoutRequest struct {
	Data checkoutRequestData `json:"data"`
}

type checkoutRequestData struct {
	Type          string                 `json:"type"`
	Attributes    checkoutAttributes     `json:"attributes"`
	Relationships map[string]relationRef `json:"relationships"`
}

type checkoutAttributes struct {
	ProductOptions  productOptions  `json:"product_options"`
	CheckoutOptions checkoutOptions `json:"checkout_options"`
	CheckoutData    checkoutData    `json:"checkout_data"`
}

type productOptions struct {
	EnabledVariants []string `json:"enabled_variants"`
}

type checkoutOptions struct {
	Embed bool `json:"embed"`
}

type checkoutData struct {
	Email  string            `json:"email"`
	Custom map[string]string `json:"custom"`
}

type relationRef struct {
	Data relationData `json:"data"`
}

type relationData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type checkoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// ---------------------------------------------------------------------------
// CheckoutService Implementation
// ---------------------------------------------------------------------------

// CreateCheckout creates a hosted checkout session scoped to the configured
// store and variant. The user's email and id are embedded as checkout_data so
// the provider echoes them back in webhook payloads; that echo is the only
// correlation between the checkout call and the later lifecycle events.
//
// A non-success provider status or a malformed response body fails uniformly:
// the status is logged for operators but never surfaces to the caller.
func (p *ProviderClient) CreateCheckout(ctx context.Context, userID, userEmail string) (string, error) {
	payload := checkoutRequest{
		Data: checkoutRequestData{
			Type: "checkouts",
			Attributes: checkoutAttributes{
				ProductOptions: productOptions{
					EnabledVariants: []string{p.variantID},
				},
				CheckoutOptions: checkoutOptions{
					Embed: true,
				},
				CheckoutData: checkoutData{
					Email: userEmail,
					Custom: map[string]string{
						"user_id":    userID,
						"user_email": userEmail,
					},
				},
			},
			Relationships: map[string]relationRef{
				"store":   {Data: relationData{Type: "stores", ID: p.storeID}},
				"variant": {Data: relationData{Type: "variants", ID: p.variantID}},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to encode checkout request",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/checkouts", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build checkout request",
			err,
		)
	}
	req.Header.Set("Accept", providerContentType)
	req.Header.Set("Content-Type", providerContentType)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.base.Do(req)
	if err != nil {
		p.logger.ErrorContext(ctx, "checkout creation request failed",
			"error", err,
		)
		return "", types.NewAppError(
			types.ErrCodeUpstreamProvider,
			"failed to create checkout session",
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		// The provider status is diagnostic only; it is never leaked to the
		// caller, who sees a uniform upstream failure.
		p.logger.ErrorContext(ctx, "checkout creation returned non-success status",
			"status", resp.StatusCode,
		)
		return "", types.NewAppError(
			types.ErrCodeUpstreamProvider,
			"failed to create checkout session",
			nil,
		)
	}

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamProvider,
			"failed to decode checkout session response",
			err,
		)
	}

	if out.Data.Attributes.URL == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamProvider,
			"checkout session response is missing the hosted URL",
			nil,
		)
	}

	return out.Data.Attributes.URL, nil
}

// Compile-time assertion that ProviderClient satisfies CheckoutService.
var _ CheckoutService = (*ProviderClient)(nil)
