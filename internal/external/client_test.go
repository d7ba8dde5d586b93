package external

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate/internal/types"
)

func newRetryTestClient(t *testing.T, maxRetries int, sleeps *[]time.Duration) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker-"+t.Name(),
		RetryPolicy{
			MaxRetries: maxRetries,
			MinWait:    10 * time.Millisecond,
			MaxWait:    100 * time.Millisecond,
		},
		"SubGate/1.0",
		WithSleepFunc(func(d time.Duration) {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		}),
	)
}

func TestBaseClient_Do_SuccessFirstAttempt(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newRetryTestClient(t, 2, nil)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestBaseClient_Do_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newRetryTestClient(t, 2, &sleeps)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Len(t, sleeps, 2)
}

func TestBaseClient_Do_BodyReplayedOnRetry(t *testing.T) {
	var attempts int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newRetryTestClient(t, 1, nil)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL,
		bytes.NewReader([]byte(`{"data":"payload"}`)))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Len(t, bodies, 2)
	assert.Equal(t, `{"data":"payload"}`, bodies[0])
	assert.Equal(t, `{"data":"payload"}`, bodies[1])
}

func TestBaseClient_Do_ExhaustedRetriesMapTo502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newRetryTestClient(t, 1, nil)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
}

func TestBaseClient_Do_RateLimitMapsToRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	client := newRetryTestClient(t, 1, &sleeps)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)

	// Retry-After: 1s exceeds MaxWait (100ms) and is clamped to it.
	require.Len(t, sleeps, 1)
	assert.Equal(t, 100*time.Millisecond, sleeps[0])
}

func TestBaseClient_Do_NonRetryable4xxReturnedAsIs(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newRetryTestClient(t, 2, nil)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "4xx responses are not retried")
}

func TestBaseClient_Do_PropagatesRequestIDAndUserAgent(t *testing.T) {
	var gotRequestID, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-ID")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newRetryTestClient(t, 0, nil)
	ctx := types.WithRequestID(context.Background(), "req_abc123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req_abc123", gotRequestID)
	assert.Equal(t, "SubGate/1.0", gotUA)
}
