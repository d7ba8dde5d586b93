package external

import (
	"context"

	"subgate/internal/types"
)

// ---------------------------------------------------------------------------
// Payment Provider Integration
// ---------------------------------------------------------------------------

// CheckoutService abstracts the payment provider's checkout-creation API.
// Implementations translate between domain values and the vendor wire format.
type CheckoutService interface {
	// CreateCheckout asks the provider for a hosted checkout session scoped
	// to the configured store and variant. The user's id and email travel as
	// opaque custom metadata so the eventual webhook can be correlated back
	// to the identity without the provider knowing about the directory.
	// Returns the hosted checkout URL.
	CreateCheckout(ctx context.Context, userID, userEmail string) (string, error)
}

// WebhookVerifier abstracts provider webhook signature checking.
type WebhookVerifier interface {
	// Verify reports whether header is the valid signature of payload under
	// secret. It must operate on the raw, unparsed body bytes and must never
	// panic on malformed input; any defect in the header is simply false.
	Verify(payload []byte, header string, secret string) bool
}

// ---------------------------------------------------------------------------
// Identity Directory Integration
// ---------------------------------------------------------------------------

// IdentityDirectory abstracts the external identity provider. The directory
// owns identity creation and deletion; this service only reads identities and
// rewrites their custom-claims document.
type IdentityDirectory interface {
	// GetByEmail resolves an email to an identity, including its current
	// custom claims. Returns an AppError with code not_found_identity when
	// no identity exists for the email.
	GetByEmail(ctx context.Context, email string) (*types.Identity, error)

	// SetClaims replaces the identity's custom-claims document with the
	// given map. Callers that need merge semantics must read-merge-write;
	// the directory itself replaces the whole document (the write is atomic
	// per identity).
	SetClaims(ctx context.Context, identityID string, claims map[string]any) error

	// VerifyToken resolves a bearer ID token to the caller's identity
	// attributes. Used by the auth middleware on the checkout RPC.
	VerifyToken(ctx context.Context, token string) (*types.Actor, error)
}
