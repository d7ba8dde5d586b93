// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the SubGate configuration from the process
// environment. A .env file in the working directory is merged in first
// (existing environment variables win), then envconfig tags populate the
// struct, then the whole struct is validated.
//
// Any missing required value fails the load; callers are expected to treat a
// LoadConfig error as fatal at startup.
func LoadConfig() (*Config, error) {
	// Enforce UTC to prevent drift bugs in delivery log timestamps.
	time.Local = time.UTC

	// Load .env file (non-fatal if absent). godotenv does NOT override
	// variables already present in the environment.
	_ = godotenv.Load()

	// Process envconfig tags. The empty prefix means envconfig uses the
	// exact tag values (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Validate the populated struct.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}
