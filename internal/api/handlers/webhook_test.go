package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate/internal/external"
	"subgate/internal/types"
)

const testSigningSecret = "whsec_test_secret"

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockEntitlementWriter implements EntitlementWriter for testing.
type mockEntitlementWriter struct {
	calls []entitlementCall
	err   error
}

type entitlementCall struct {
	Email   string
	Granted bool
}

func (m *mockEntitlementWriter) SetEntitlement(_ context.Context, email string, granted bool) error {
	m.calls = append(m.calls, entitlementCall{Email: email, Granted: granted})
	return m.err
}

// mockDeliveryRecorder implements DeliveryRecorder for testing.
type mockDeliveryRecorder struct {
	records []types.DeliveryRecord
	err     error
}

func (m *mockDeliveryRecorder) Record(_ context.Context, rec *types.DeliveryRecord) error {
	m.records = append(m.records, *rec)
	return m.err
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// buildEvent constructs the provider's webhook envelope.
func buildEvent(eventName, email string) []byte {
	return []byte(`{"meta":{"event_name":"` + eventName + `","custom_data":{"user_email":"` + email + `","user_id":"uid_1"}}}`)
}

// sign computes the X-Signature value for a payload.
func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestWebhookHandler(entitlements *mockEntitlementWriter, deliveries *mockDeliveryRecorder) *WebhookHandler {
	var recorder DeliveryRecorder
	if deliveries != nil {
		recorder = deliveries
	}
	return NewWebhookHandler(
		external.NewHMACVerifier(),
		entitlements,
		recorder,
		testSigningSecret,
		nil,
	)
}

func doWebhookRequest(h *WebhookHandler, body []byte, sigHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/subscriptions", bytes.NewReader(body))
	if sigHeader != "" {
		req.Header.Set("X-Signature", sigHeader)
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// Tests: Signature Verification
// ---------------------------------------------------------------------------

func TestWebhookHandler_MissingSignature(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	h := newTestWebhookHandler(entitlements, nil)

	rr := doWebhookRequest(h, buildEvent(types.EventSubscriptionCreated, "a@b.co"), "")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Unauthorized", rr.Body.String())
	assert.Empty(t, entitlements.calls, "no entitlement mutation may run on a rejected delivery")
}

func TestWebhookHandler_TamperedBody(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	h := newTestWebhookHandler(entitlements, nil)

	body := buildEvent(types.EventSubscriptionCreated, "a@b.co")
	sig := sign(body)
	tampered := bytes.Replace(body, []byte("a@b.co"), []byte("x@b.co"), 1)

	rr := doWebhookRequest(h, tampered, sig)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Unauthorized", rr.Body.String())
	assert.Empty(t, entitlements.calls)
}

func TestWebhookHandler_GarbageSignature(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	h := newTestWebhookHandler(entitlements, nil)

	body := buildEvent(types.EventSubscriptionCreated, "a@b.co")
	rr := doWebhookRequest(h, body, "zzzz-not-hex")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, entitlements.calls)
}

// ---------------------------------------------------------------------------
// Tests: Event Routing
// ---------------------------------------------------------------------------

func TestWebhookHandler_SubscriptionCreated_Grants(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	deliveries := &mockDeliveryRecorder{}
	h := newTestWebhookHandler(entitlements, deliveries)

	body := buildEvent(types.EventSubscriptionCreated, "subscriber@example.com")
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Event processed", rr.Body.String())

	require.Len(t, entitlements.calls, 1)
	assert.Equal(t, entitlementCall{Email: "subscriber@example.com", Granted: true}, entitlements.calls[0])

	require.Len(t, deliveries.records, 1)
	assert.Equal(t, "grant", deliveries.records[0].Action)
	assert.Equal(t, types.DeliveryOutcomeProcessed, deliveries.records[0].Outcome)
}

func TestWebhookHandler_SubscriptionExpired_Revokes(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	h := newTestWebhookHandler(entitlements, nil)

	body := buildEvent(types.EventSubscriptionExpired, "subscriber@example.com")
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, entitlements.calls, 1)
	assert.Equal(t, entitlementCall{Email: "subscriber@example.com", Granted: false}, entitlements.calls[0])
}

func TestWebhookHandler_UnhandledEventNamedInResponse(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	deliveries := &mockDeliveryRecorder{}
	h := newTestWebhookHandler(entitlements, deliveries)

	body := buildEvent("subscription_payment_success", "subscriber@example.com")
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "subscription_payment_success")
	assert.Empty(t, entitlements.calls)

	require.Len(t, deliveries.records, 1)
	assert.Equal(t, types.DeliveryOutcomeUnhandled, deliveries.records[0].Outcome)
}

// ---------------------------------------------------------------------------
// Tests: Payload Validation
// ---------------------------------------------------------------------------

func TestWebhookHandler_MalformedJSON(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	h := newTestWebhookHandler(entitlements, nil)

	body := []byte(`{"meta": not-json`)
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, entitlements.calls)
}

func TestWebhookHandler_MissingEventName(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	h := newTestWebhookHandler(entitlements, nil)

	body := []byte(`{"meta":{"custom_data":{"user_email":"a@b.co"}}}`)
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, entitlements.calls)
}

func TestWebhookHandler_MissingEmail(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	h := newTestWebhookHandler(entitlements, nil)

	body := []byte(`{"meta":{"event_name":"subscription_created","custom_data":{}}}`)
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, entitlements.calls)
}

// ---------------------------------------------------------------------------
// Tests: Adapter Failures
// ---------------------------------------------------------------------------

func TestWebhookHandler_AdapterFailurePropagatesStatus(t *testing.T) {
	entitlements := &mockEntitlementWriter{
		err: types.NewAppError(types.ErrCodeUpstreamIdentity, "claims update failed", nil),
	}
	deliveries := &mockDeliveryRecorder{}
	h := newTestWebhookHandler(entitlements, deliveries)

	body := buildEvent(types.EventSubscriptionCreated, "subscriber@example.com")
	rr := doWebhookRequest(h, body, sign(body))

	// Non-2xx so the provider retries the delivery.
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "Event processing failed", rr.Body.String())

	require.Len(t, deliveries.records, 1)
	assert.Equal(t, types.DeliveryOutcomeFailed, deliveries.records[0].Outcome)
}

func TestWebhookHandler_AdapterGenericError500(t *testing.T) {
	entitlements := &mockEntitlementWriter{
		err: assert.AnError,
	}
	h := newTestWebhookHandler(entitlements, nil)

	body := buildEvent(types.EventSubscriptionExpired, "subscriber@example.com")
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWebhookHandler_DeliveryLogFailureDoesNotChangeResponse(t *testing.T) {
	entitlements := &mockEntitlementWriter{}
	deliveries := &mockDeliveryRecorder{err: assert.AnError}
	h := newTestWebhookHandler(entitlements, deliveries)

	body := buildEvent(types.EventSubscriptionCreated, "subscriber@example.com")
	rr := doWebhookRequest(h, body, sign(body))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Event processed", rr.Body.String())
}
