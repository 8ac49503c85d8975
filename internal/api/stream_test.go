package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRoutes_HandshakeAndSnapshot(t *testing.T) {
	t.Parallel()
	env := setupController(t)
	env.seedDriver(t, "M123", "Ana")
	env.readyDevice("M123")

	start := env.postJSON("/api/v1/routes/start",
		`{"matricula":"M123","rota":"ROTA 01","geoAvailable":true,"confirmed":true}`)
	require.Equal(t, http.StatusOK, start.Code)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/routes/stream", http.NoBody).WithContext(ctx)
	rec := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		env.echo.ServeHTTP(rec, req)
		close(served)
	}()

	// Give the handler time to write the handshake and initial snapshot,
	// then disconnect the client.
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after client disconnect")
	}

	body := rec.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "clientId")
	assert.Contains(t, body, "event: routes")
	assert.Contains(t, body, "ROTA 01")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestStreamRoutes_PushesCollectionChanges(t *testing.T) {
	t.Parallel()
	env := setupController(t)
	env.seedDriver(t, "M123", "Ana")
	env.readyDevice("M123")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/routes/stream", http.NoBody).WithContext(ctx)
	rec := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		env.echo.ServeHTTP(rec, req)
		close(served)
	}()

	// Let the client subscribe, then start a route. The collection change
	// must reach the stream as a fresh snapshot.
	time.Sleep(100 * time.Millisecond)
	start := env.postJSON("/api/v1/routes/start",
		`{"matricula":"M123","rota":"ROTA 01","geoAvailable":true,"confirmed":true}`)
	require.Equal(t, http.StatusOK, start.Code)

	// Change notifications are delivered asynchronously; leave the stream
	// open long enough for the snapshot to arrive before disconnecting.
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after client disconnect")
	}

	assert.Contains(t, rec.Body.String(), "ROTA 01")
}
