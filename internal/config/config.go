// Package config defines the strongly-typed configuration for the SubGate
// service and the loading lifecycle that populates it from the environment.
//
// All values are read once at process start. Every provider credential the
// webhook and checkout flows depend on (signing secret, API key, store id,
// variant id) is required; a missing value is a startup-time fatal error,
// never a per-request one.
package config

import (
	"time"

	"subgate/internal/types"
)

// ConfigErrorType categorizes configuration loading failures for diagnostics.
type ConfigErrorType string

const (
	// ErrParsing indicates envconfig could not populate the struct.
	ErrParsing ConfigErrorType = "parsing"
	// ErrValidation indicates the populated struct failed validation.
	ErrValidation ConfigErrorType = "validation"
)

// Config is the root configuration struct, populated via envconfig tags.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"subgate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain configurations
	Server   ServerConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Identity IdentityConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL types.SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// ProviderConfig holds the payment provider integration credentials.
//
// SigningSecret authenticates inbound webhooks (HMAC-SHA256 over the raw
// body); APIKey authenticates outbound checkout-creation calls. StoreID and
// VariantID scope every checkout session to the one subscription product
// this service sells.
type ProviderConfig struct {
	APIKey        types.SecretString `envconfig:"PROVIDER_API_KEY" validate:"required"`
	SigningSecret types.SecretString `envconfig:"SIGNING_SECRET" validate:"required"`
	StoreID       string             `envconfig:"STORE_ID" validate:"required"`
	VariantID     string             `envconfig:"VARIANT_ID" validate:"required"`
	BaseURL       string             `envconfig:"PROVIDER_BASE_URL" default:"https://api.lemonsqueezy.com/v1"`
	Timeout       time.Duration      `envconfig:"PROVIDER_TIMEOUT" default:"20s"`
}

// IdentityConfig holds the identity directory integration settings.
// EntitlementClaim is the name of the boolean custom claim toggled by
// subscription lifecycle events.
type IdentityConfig struct {
	BaseURL          string             `envconfig:"IDENTITY_BASE_URL" validate:"required,url"`
	APIKey           types.SecretString `envconfig:"IDENTITY_API_KEY" validate:"required"`
	EntitlementClaim string             `envconfig:"ENTITLEMENT_CLAIM" default:"demo_subscription"`
	Timeout          time.Duration      `envconfig:"IDENTITY_TIMEOUT" default:"10s"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}
