package types

import "context"

// Actor represents the authenticated caller of an API operation.
// It is resolved from the bearer token by the auth middleware and carries
// exactly the identity attributes the checkout flow needs: the directory
// user ID and the verified email (empty when the identity has none).
type Actor struct {
	ID            string
	Email         string
	EmailVerified bool
}

// Context keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
