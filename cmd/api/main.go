// Package main is the entry point for the SubGate API server.
//
// It loads configuration, connects the Postgres delivery log, builds the
// payment provider and identity directory clients, and serves the HTTP API
// with the core chassis (middleware, routing, health checks).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"subgate/internal/api/handlers"
	"subgate/internal/config"
	"subgate/internal/core"
	"subgate/internal/db"
	"subgate/internal/entitlement"
	"subgate/internal/external"
	"subgate/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("subgate API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Delivery log storage. The database is required at startup; a service
	// that cannot record deliveries should fail loudly, not silently.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	deliveryRepo := db.NewDeliveryRepository(pool)

	// Outbound clients.
	providerClient := external.NewProviderClient(
		&http.Client{Timeout: cfg.Provider.Timeout},
		external.ProviderClientConfig{
			APIKey:    cfg.Provider.APIKey.Unmask(),
			StoreID:   cfg.Provider.StoreID,
			VariantID: cfg.Provider.VariantID,
			BaseURL:   cfg.Provider.BaseURL,
			Logger:    logger,
		},
	)

	identityClient := external.NewIdentityClient(
		&http.Client{Timeout: cfg.Identity.Timeout},
		external.IdentityClientConfig{
			BaseURL: cfg.Identity.BaseURL,
			APIKey:  cfg.Identity.APIKey.Unmask(),
			Logger:  logger,
		},
	)

	entitlements := entitlement.NewService(identityClient, cfg.Identity.EntitlementClaim, logger)

	// Server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = &directoryAuthenticator{dir: identityClient}
	srv.HealthProbes = []core.HealthProbe{db.NewProbe(pool)}

	webhookHandler := handlers.NewWebhookHandler(
		external.NewHMACVerifier(),
		entitlements,
		deliveryRepo,
		cfg.Provider.SigningSecret.Unmask(),
		logger,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars, webhookHandler.RegisterRoutes)

	billingHandler := handlers.NewBillingHandler(providerClient, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, billingHandler.RegisterRoutes)

	srv.MountRoutes()

	return serve(ctx, srv, cfg, logger)
}

// serve runs the HTTP server until the context is cancelled (shutdown signal)
// or ListenAndServe fails, then drains in-flight requests.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// directoryAuthenticator resolves bearer tokens through the identity
// directory, satisfying core.Authenticator.
type directoryAuthenticator struct {
	dir external.IdentityDirectory
}

func (a *directoryAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	return a.dir.VerifyToken(ctx, token)
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
