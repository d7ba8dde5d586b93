package types

import "time"

// Provider event name constants prevent magic strings in webhook handling.
// The provider emits more lifecycle events than these (cancelled, paused,
// payment_failed, ...); only the names with an explicit entitlement mapping
// are listed here, everything else is routed as unhandled.
const (
	EventSubscriptionCreated = "subscription_created"
	EventSubscriptionExpired = "subscription_expired"
)

// WebhookEvent is the parsed form of a provider webhook envelope.
// It is ephemeral: built from a single HTTP request and never persisted.
// RawBody holds the exact bytes the signature was computed over.
type WebhookEvent struct {
	Meta    WebhookMeta `json:"meta"`
	RawBody []byte      `json:"-"`
}

// WebhookMeta is the provider's event metadata block.
type WebhookMeta struct {
	EventName  string            `json:"event_name"`
	CustomData WebhookCustomData `json:"custom_data"`
}

// WebhookCustomData carries the opaque correlation fields this service embeds
// at checkout time and the provider echoes back on every webhook.
type WebhookCustomData struct {
	UserEmail string `json:"user_email"`
	UserID    string `json:"user_id"`
}

// Validate checks the fields the entitlement flow cannot proceed without.
// A payload missing them is rejected up front rather than failing midway
// through a claim mutation.
func (e *WebhookEvent) Validate() error {
	if e.Meta.EventName == "" {
		return NewAppError(ErrCodeValidationMissingField, "webhook payload is missing meta.event_name", nil)
	}
	if e.Meta.CustomData.UserEmail == "" {
		return NewAppError(ErrCodeValidationMissingField, "webhook payload is missing meta.custom_data.user_email", nil)
	}
	return nil
}

// Identity is the external directory's view of a user: a stable ID plus a
// custom-claims document. This service only ever mutates the claims map and
// never creates or deletes identities.
type Identity struct {
	ID     string
	Email  string
	Claims map[string]any
}

// DeliveryRecord is one row of the webhook delivery log. The log is
// operational diagnostics only: it lets operators reconstruct duplicate and
// out-of-order deliveries for an email, it never feeds back into processing.
type DeliveryRecord struct {
	ID         string
	EventName  string
	UserEmail  string
	Action     string
	Outcome    string
	Detail     string
	ReceivedAt time.Time
}

// Delivery outcome values recorded in the delivery log.
const (
	DeliveryOutcomeProcessed = "processed"
	DeliveryOutcomeUnhandled = "unhandled"
	DeliveryOutcomeFailed    = "failed"
)
