package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"subgate/internal/config"
)

func newTestServerForHealth(t *testing.T, probes ...HealthProbe) *Server {
	t.Helper()

	cfg := &config.Config{Environment: "local"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	srv.HealthProbes = probes
	return srv
}

func doHealthRequest(t *testing.T, srv *Server) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse health response: %v", err)
	}
	return rec, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServerForHealth(t)

	rec, resp := doHealthRequest(t, srv)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status healthy, got %q", resp.Status)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv := newTestServerForHealth(t,
		&MockHealthProbe{ProbeName: "database"},
		&MockHealthProbe{ProbeName: "identity-directory"},
	)

	rec, resp := doHealthRequest(t, srv)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status healthy, got %q", resp.Status)
	}
	if len(resp.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(resp.Components))
	}
	for name, comp := range resp.Components {
		if comp.Status != "healthy" {
			t.Errorf("component %s: expected healthy, got %q", name, comp.Status)
		}
	}
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	srv := newTestServerForHealth(t,
		&MockHealthProbe{ProbeName: "database", Err: errors.New("connection refused")},
		&MockHealthProbe{ProbeName: "identity-directory"},
	)

	rec, resp := doHealthRequest(t, srv)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected status unhealthy, got %q", resp.Status)
	}
	db := resp.Components["database"]
	if db.Status != "unhealthy" {
		t.Errorf("database: expected unhealthy, got %q", db.Status)
	}
	if db.Message != "connection refused" {
		t.Errorf("database: expected failure message, got %q", db.Message)
	}
	if dir := resp.Components["identity-directory"]; dir.Status != "healthy" {
		t.Errorf("identity-directory: expected healthy, got %q", dir.Status)
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	srv := newTestServerForHealth(t,
		&MockHealthProbe{
			ProbeName: "database",
			CheckFunc: func(ctx context.Context) error {
				panic("probe exploded")
			},
		},
	)

	rec, resp := doHealthRequest(t, srv)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if db := resp.Components["database"]; db.Status != "unhealthy" {
		t.Errorf("database: expected unhealthy, got %q", db.Status)
	}
}

func TestHandleHealth_ProbeObservesDeadline(t *testing.T) {
	var hadDeadline bool
	srv := newTestServerForHealth(t,
		&MockHealthProbe{
			ProbeName: "database",
			CheckFunc: func(ctx context.Context) error {
				_, hadDeadline = ctx.Deadline()
				return nil
			},
		},
	)

	rec, _ := doHealthRequest(t, srv)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !hadDeadline {
		t.Error("expected probe context to carry a deadline")
	}
}
