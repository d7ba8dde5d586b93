// Package handlers contains the HTTP handler implementations for the SubGate API.
//
// This file implements the payment provider webhook intake. The handler is
// NOT behind auth middleware; it is called directly by the provider. Security
// is provided by verifying the X-Signature header (hex HMAC-SHA256 over the
// raw body) before anything else happens.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subgate/internal/core"
	"subgate/internal/entitlement"
	"subgate/internal/external"
	"subgate/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a webhook payload (64 KB).
// Provider payloads are small; this limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// EntitlementWriter is the subset of the entitlement service the webhook
// handler needs.
type EntitlementWriter interface {
	SetEntitlement(ctx context.Context, email string, granted bool) error
}

// DeliveryRecorder appends rows to the webhook delivery log.
type DeliveryRecorder interface {
	Record(ctx context.Context, rec *types.DeliveryRecord) error
}

// WebhookHandler handles asynchronous subscription lifecycle events from the
// payment provider. Responses on this endpoint are plain text, matching what
// the provider's delivery dashboard displays to operators.
type WebhookHandler struct {
	verifier     external.WebhookVerifier
	entitlements EntitlementWriter
	deliveries   DeliveryRecorder
	secret       string
	logger       *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler with the provided
// dependencies. deliveries may be nil; the delivery log is best-effort.
func NewWebhookHandler(
	verifier external.WebhookVerifier,
	entitlements EntitlementWriter,
	deliveries DeliveryRecorder,
	secret string,
	logger *slog.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		verifier:     verifier,
		entitlements: entitlements,
		deliveries:   deliveries,
		secret:       secret,
		logger:       logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. This is separate from the
// billing handler's RegisterRoutes because webhook routes are public (no
// auth middleware).
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/subscriptions", h.Handle)
}

// Handle processes one webhook delivery as a single stateless pass:
//
//  1. Reads the raw body and the X-Signature header.
//  2. Verifies the signature. Failure is terminal: 403 "Unauthorized",
//     nothing downstream runs.
//  3. Parses the event envelope and validates the required fields.
//  4. Routes the event name to an entitlement action.
//  5. Applies the action; on success responds 200 "Event processed".
//
// Unhandled event names answer 400 with the event name in the body. That is
// deliberately a client-visible rejection, not a processing failure. Adapter
// failures answer non-2xx so the provider's automatic retry is the recovery
// path; there is no internal retry.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			"error", err,
		)
		core.PlainText(w, http.StatusBadRequest, "Invalid body")
		return
	}

	if !h.verifier.Verify(payload, r.Header.Get("X-Signature"), h.secret) {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed")
		core.PlainText(w, http.StatusForbidden, "Unauthorized")
		return
	}

	var event types.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse webhook event JSON",
			"error", err,
		)
		core.PlainText(w, http.StatusBadRequest, "Invalid event payload")
		return
	}
	event.RawBody = payload

	if err := event.Validate(); err != nil {
		h.logger.WarnContext(r.Context(), "webhook event failed validation",
			"event_name", event.Meta.EventName,
			"error", err,
		)
		core.PlainText(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	eventName := event.Meta.EventName
	email := event.Meta.CustomData.UserEmail

	h.logger.InfoContext(r.Context(), "processing webhook event",
		"event_name", eventName,
	)

	action := entitlement.Route(eventName)
	switch action.Kind {
	case entitlement.ActionGrant:
		err = h.entitlements.SetEntitlement(r.Context(), email, true)
	case entitlement.ActionRevoke:
		err = h.entitlements.SetEntitlement(r.Context(), email, false)
	case entitlement.ActionUnhandled:
		h.logger.InfoContext(r.Context(), "ignoring unhandled webhook event",
			"event_name", eventName,
		)
		h.recordDelivery(r.Context(), &event, action, types.DeliveryOutcomeUnhandled, "")
		core.PlainText(w, http.StatusBadRequest, "Event "+eventName+" not handled")
		return
	}

	if err != nil {
		h.logger.ErrorContext(r.Context(), "entitlement update failed",
			"event_name", eventName,
			"error", err,
		)
		h.recordDelivery(r.Context(), &event, action, types.DeliveryOutcomeFailed, err.Error())
		core.PlainText(w, errorStatus(err), "Event processing failed")
		return
	}

	h.recordDelivery(r.Context(), &event, action, types.DeliveryOutcomeProcessed, "")
	core.PlainText(w, http.StatusOK, "Event processed")
}

// recordDelivery appends to the delivery log. Failures are logged and
// swallowed; the log is diagnostics, never part of the response contract.
func (h *WebhookHandler) recordDelivery(
	ctx context.Context,
	event *types.WebhookEvent,
	action entitlement.Action,
	outcome string,
	detail string,
) {
	if h.deliveries == nil {
		return
	}

	rec := &types.DeliveryRecord{
		EventName: event.Meta.EventName,
		UserEmail: event.Meta.CustomData.UserEmail,
		Action:    actionName(action),
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := h.deliveries.Record(ctx, rec); err != nil {
		h.logger.WarnContext(ctx, "failed to record webhook delivery",
			"event_name", rec.EventName,
			"error", err,
		)
	}
}

// actionName renders a routing decision for the delivery log.
func actionName(a entitlement.Action) string {
	switch a.Kind {
	case entitlement.ActionGrant:
		return "grant"
	case entitlement.ActionRevoke:
		return "revoke"
	default:
		return "unhandled"
	}
}

// errorStatus maps an adapter error to the webhook response status. AppErrors
// carry their own status; anything else is a plain 500.
func errorStatus(err error) int {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
