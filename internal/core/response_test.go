package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"subgate/internal/types"
)

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, req, http.StatusOK, APIResponse{Data: map[string]string{"checkout_url": "https://pay.example.com/c/1"}})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", resp["data"])
	}
	if data["checkout_url"] != "https://pay.example.com/c/1" {
		t.Errorf("unexpected data payload: %v", data)
	}
}

func TestError_AppErrorMapsStatusAndCode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req_1"))

	Error(rec, req, types.NewAppError(types.ErrCodePreconditionEmailMissing, "an email address is required", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodePreconditionEmailMissing) {
		t.Errorf("expected code %q, got %q", types.ErrCodePreconditionEmailMissing, resp.Error.Code)
	}
	if resp.Error.RequestID != "req_1" {
		t.Errorf("expected request ID req_1, got %q", resp.Error.RequestID)
	}
}

func TestError_GenericErrorDoesNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	Error(rec, req, errors.New("pq: password authentication failed for user"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("internal error detail leaked: %s", rec.Body.String())
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected code %q, got %q", types.ErrCodeInternalUnexpected, resp.Error.Code)
	}
}

func TestError_WrappedAppErrorIsUnwrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	inner := types.NewAppError(types.ErrCodeUpstreamProvider, "failed to create checkout session", nil)
	Error(rec, req, errors.Join(errors.New("outer"), inner))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
}

func TestPlainText(t *testing.T) {
	rec := httptest.NewRecorder()
	PlainText(rec, http.StatusForbidden, "Unauthorized")

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rec.Code)
	}
	if rec.Body.String() != "Unauthorized" {
		t.Errorf("expected body %q, got %q", "Unauthorized", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("unexpected Content-Type %q", ct)
	}
}

func TestDecodeJSON_Valid(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))

	var dst struct {
		Name string `json:"name"`
	}
	if err := DecodeJSON(rec, req, &dst); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if dst.Name != "x" {
		t.Errorf("expected name x, got %q", dst.Name)
	}
}

func TestDecodeJSON_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"name":`},
		{"unknown field", `{"bogus":true}`},
		{"multiple values", `{"name":"a"}{"name":"b"}`},
		{"type mismatch", `{"name":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst struct {
				Name string `json:"name"`
			}
			err := DecodeJSON(rec, req, &dst)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %T", err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("expected code %q, got %q", types.ErrCodeValidationInvalidJSON, appErr.Code)
			}
		})
	}
}

func TestDecodeJSON_OversizedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	body := `{"name":"` + strings.Repeat("a", maxRequestBodySize+1) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(rec, req, &dst)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("expected code %q, got %q", types.ErrCodeValidationInvalidJSON, appErr.Code)
	}
}
