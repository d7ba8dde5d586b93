// Package entitlement holds the domain logic that turns subscription
// lifecycle events from the payment provider into entitlement claims on the
// identity directory.
package entitlement

import "subgate/internal/types"

// ActionKind classifies what a webhook event demands of the entitlement layer.
type ActionKind int

const (
	// ActionGrant turns the entitlement claim on.
	ActionGrant ActionKind = iota
	// ActionRevoke turns the entitlement claim off.
	ActionRevoke
	// ActionUnhandled marks an event this service does not act on.
	ActionUnhandled
)

// Action is the routing decision for a single webhook event. EventName is
// carried so unhandled events can be reported back by name.
type Action struct {
	Kind      ActionKind
	EventName string
}

// Route maps a provider event name to an entitlement action. Only the two
// lifecycle edges matter here; intermediate events (payment success, renewal,
// pause) do not change the entitlement and are reported as unhandled.
func Route(eventName string) Action {
	switch eventName {
	case types.EventSubscriptionCreated:
		return Action{Kind: ActionGrant, EventName: eventName}
	case types.EventSubscriptionExpired:
		return Action{Kind: ActionRevoke, EventName: eventName}
	default:
		return Action{Kind: ActionUnhandled, EventName: eventName}
	}
}
