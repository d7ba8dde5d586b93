package core

import (
	"context"
	"sync"

	"subgate/internal/types"
)

// --- MockAuthenticator ---

// MockAuthenticator implements the Authenticator interface for testing.
// It allows injecting a predefined Actor for a given token, or returning
// a fixed error to simulate authentication failures.
//
// Usage:
//
//	mock := &MockAuthenticator{
//	    Actor: &types.Actor{
//	        ID:    "uid_test123",
//	        Email: "user@example.com",
//	    },
//	}
//	actor, err := mock.ResolveToken(ctx, "tok_abc123")
//
// To simulate an error:
//
//	mock := &MockAuthenticator{
//	    Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil),
//	}
type MockAuthenticator struct {
	// Actor is the predefined Actor returned on successful token resolution.
	// If nil and Err is also nil, ResolveToken returns (nil, nil).
	Actor *types.Actor

	// Err is the error returned by ResolveToken. When set, Actor is ignored.
	Err error

	// ResolveTokenFunc is an optional function that overrides the default
	// behavior. When set, it takes precedence over Actor and Err fields so
	// tests can vary behavior based on the token value.
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	// mu protects Calls for concurrent access.
	mu sync.Mutex

	// Calls records every token passed to ResolveToken for assertion purposes.
	Calls []string
}

// ResolveToken implements the Authenticator interface.
// It records the call, then delegates to ResolveTokenFunc if set,
// otherwise returns Err (if set) or Actor.
func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// --- MockHealthProbe ---

// MockHealthProbe implements HealthProbe with a fixed name and result.
type MockHealthProbe struct {
	// ProbeName is returned by Name. Defaults to "mock" when empty.
	ProbeName string

	// Err is the result returned by Check.
	Err error

	// CheckFunc optionally overrides the default behavior, for probes that
	// need to observe the context or block.
	CheckFunc func(ctx context.Context) error
}

func (m *MockHealthProbe) Name() string {
	if m.ProbeName == "" {
		return "mock"
	}
	return m.ProbeName
}

func (m *MockHealthProbe) Check(ctx context.Context) error {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx)
	}
	return m.Err
}
