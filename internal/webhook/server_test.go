package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mooring-labs/searchlink/internal/reconcile"
)

type processorFunc func(ctx context.Context, payload []byte) ([]reconcile.SignalResult, error)

func (f processorFunc) ProcessPayload(ctx context.Context, payload []byte) ([]reconcile.SignalResult, error) {
	return f(ctx, payload)
}

func TestLifecycleDeliveryAcknowledgedBeforeProcessing(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	release := make(chan struct{})
	server := NewServer(":0", processorFunc(func(_ context.Context, payload []byte) ([]reconcile.SignalResult, error) {
		received <- payload
		<-release
		return nil, nil
	}))
	t.Cleanup(func() {
		close(release)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	body := `{"notifications":[{"resourceId":"conn-1","desiredState":"enabled"}],"validationTokens":["tok"]}`
	resp, err := http.Post(ts.URL+"/webhook/lifecycle", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	// 202 arrives while the processor is still blocked.
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case payload := <-received:
		assert.JSONEq(t, body, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("processor never received the delivery")
	}
}

func TestLifecycleDeliveryAcceptedEvenWhenDiscarded(t *testing.T) {
	t.Parallel()

	processed := make(chan struct{}, 1)
	server := NewServer(":0", processorFunc(func(context.Context, []byte) ([]reconcile.SignalResult, error) {
		processed <- struct{}{}
		return nil, reconcile.ErrSignalDiscarded
	}))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/webhook/lifecycle", "application/json", strings.NewReader(`not json at all`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("processor never ran")
	}
}

func TestLifecycleEndpointRejectsOtherMethods(t *testing.T) {
	t.Parallel()

	server := NewServer(":0", processorFunc(func(context.Context, []byte) ([]reconcile.SignalResult, error) {
		t.Error("processor must not run for non-POST requests")
		return nil, nil
	}))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/webhook/lifecycle")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(":0", processorFunc(func(context.Context, []byte) ([]reconcile.SignalResult, error) {
		return nil, nil
	}), WithMiddlewares(middleware.RequestID, LoggingMiddleware))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "healthy", status["status"])
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(":0", processorFunc(func(context.Context, []byte) ([]reconcile.SignalResult, error) {
		return nil, nil
	}))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.NotEmpty(t, info["version"])
}

func TestShutdownDrainsInflightReconciliation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	server := NewServer(":0", processorFunc(func(context.Context, []byte) ([]reconcile.SignalResult, error) {
		close(started)
		<-release
		return nil, nil
	}))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/webhook/lifecycle", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("processor never started")
	}

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- server.Shutdown(shutdownCtx)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned while a reconciliation was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-shutdownDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown never completed after the reconciliation drained")
	}
}

func TestShutdownDeadlineCancelsReconciliation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	canceled := make(chan struct{})
	server := NewServer(":0", processorFunc(func(ctx context.Context, _ []byte) ([]reconcile.SignalResult, error) {
		close(started)
		<-ctx.Done()
		close(canceled)
		return nil, ctx.Err()
	}))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/webhook/lifecycle", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("processor never started")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight reconciliation was never canceled")
	}
}
