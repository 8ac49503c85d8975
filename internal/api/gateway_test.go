package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/offlinecache"
)

// stubFetcher serves a fixed asset set, with a switch to simulate the
// network going away.
type stubFetcher struct {
	assets  map[string]string
	offline bool
}

func (f *stubFetcher) Fetch(_ context.Context, path string) (*offlinecache.Response, error) {
	if f.offline {
		return nil, fmt.Errorf("fetch %s: network unreachable", path)
	}
	body, ok := f.assets[path]
	if !ok {
		return &offlinecache.Response{Status: http.StatusNotFound, Header: http.Header{}, SameOrigin: true}, nil
	}
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	return &offlinecache.Response{
		Status:     http.StatusOK,
		Header:     header,
		Body:       []byte(body),
		SameOrigin: true,
		StoredAt:   time.Now(),
	}, nil
}

func setupGateway(t *testing.T) (*testEnv, *stubFetcher) {
	t.Helper()

	fetcher := &stubFetcher{assets: map[string]string{
		"/":             "<html>home</html>",
		"/index.html":   "<html>home</html>",
		"/app.js":       "console.log('app')",
		"/offline.html": "<html>offline</html>",
		"/sw.js":        "self.addEventListener('install', () => {})",
		"/manifest.json": `{"name":"AC Transporte"}`,
	}}

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	cache := offlinecache.NewManager(offlinecache.Config{
		Version:             "portal-test-v1",
		Manifest:            []string{"/", "/index.html", "/app.js", "/offline.html", "/sw.js", "/manifest.json"},
		OfflinePage:         "/offline.html",
		PassThroughPrefixes: []string{"/api/", "/metrics", "/healthz"},
		SkipWaiting:         true,
	}, offlinecache.NewMemoryStorage(), fetcher, log, nil)

	env := setupController(t)
	env.controller.cache = cache
	env.controller.registerPWARoutes()
	env.controller.registerGatewayRoutes()

	ctx := context.Background()
	require.NoError(t, cache.Install(ctx))
	require.NoError(t, cache.Activate(ctx))

	return env, fetcher
}

func TestGateway_ServesManifestAsset(t *testing.T) {
	t.Parallel()
	env, fetcher := setupGateway(t)

	// Manifest assets are cache-first, so the network can be gone.
	fetcher.offline = true

	rec := env.get("/app.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('app')", rec.Body.String())
}

func TestGateway_OfflineNavigationFallsBack(t *testing.T) {
	t.Parallel()
	env, fetcher := setupGateway(t)
	fetcher.offline = true

	req := httptest.NewRequest(http.MethodGet, "/rotas/alguma-pagina", http.NoBody)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "offline")
}

func TestGateway_APIPassThroughIsNotIntercepted(t *testing.T) {
	t.Parallel()
	env, fetcher := setupGateway(t)
	fetcher.offline = true

	// A pass-through path with no registered route falls out as 404
	// instead of being answered from the cache.
	rec := env.get("/api/v1/nonexistent")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Registered API routes still work while the asset network is down.
	health := env.get("/healthz")
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestGateway_ServiceWorkerHeaders(t *testing.T) {
	t.Parallel()
	env, _ := setupGateway(t)

	rec := env.get("/sw.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Service-Worker-Allowed"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestGateway_ManifestHeaders(t *testing.T) {
	t.Parallel()
	env, _ := setupGateway(t)

	rec := env.get("/manifest.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "AC Transporte")
}
