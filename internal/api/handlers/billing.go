// This file implements the checkout-session initiation handler: the
// authenticated entry point of the subscription flow. The caller's user id
// and email are embedded in the checkout as custom metadata so the later
// webhook callback can be correlated back to an identity without the payment
// provider knowing about the identity directory.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subgate/internal/core"
	"subgate/internal/external"
	"subgate/internal/types"
)

// CheckoutSessionResponse is the response body for
// POST /v1/billing/checkout-session.
type CheckoutSessionResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// BillingHandler serves the authenticated billing endpoints.
type BillingHandler struct {
	checkout external.CheckoutService
	logger   *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(checkout external.CheckoutService, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		checkout: checkout,
		logger:   logger,
	}
}

// RegisterRoutes mounts the billing routes under the authenticated /v1 group.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout-session", h.HandleCreateCheckoutSession)
}

// HandleCreateCheckoutSession starts a checkout session for the caller.
//
//  1. Requires an authenticated Actor in context; otherwise 401 with no
//     outbound call made.
//  2. Requires the Actor to have an email; otherwise 400. The email is what
//     ties the eventual webhook back to this identity, so a checkout without
//     one could never be fulfilled.
//  3. Calls the payment provider and returns the checkout URL.
func (h *BillingHandler) HandleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthUnauthenticated,
			"authentication is required to start a checkout session",
			nil,
		))
		return
	}

	if actor.Email == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodePreconditionEmailMissing,
			"an email address is required to start a checkout session",
			nil,
		))
		return
	}

	checkoutURL, err := h.checkout.CreateCheckout(r.Context(), actor.ID, actor.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "checkout session creation failed",
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: CheckoutSessionResponse{CheckoutURL: checkoutURL},
	})
}
