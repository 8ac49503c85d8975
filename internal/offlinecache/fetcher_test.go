package offlinecache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	fetcher, err := NewHTTPFetcher("http://assets.local", 5*time.Second)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(fetcher.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return fetcher
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	fetcher := newMockedFetcher(t)

	httpmock.RegisterResponder(http.MethodGet, "http://assets.local/app.js",
		httpmock.NewStringResponder(http.StatusOK, "console.log('portal')"))

	resp, err := fetcher.Fetch(context.Background(), "/app.js")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "console.log('portal')", string(resp.Body))
	assert.True(t, resp.SameOrigin)
	assert.True(t, resp.Cacheable())
	assert.WithinDuration(t, time.Now(), resp.StoredAt, time.Minute)
}

func TestHTTPFetcher_Fetch_ErrorStatusIsNotCacheable(t *testing.T) {
	fetcher := newMockedFetcher(t)

	httpmock.RegisterResponder(http.MethodGet, "http://assets.local/missing.css",
		httpmock.NewStringResponder(http.StatusNotFound, "not here"))

	resp, err := fetcher.Fetch(context.Background(), "/missing.css")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.Cacheable())
}

func TestHTTPFetcher_Fetch_NetworkError(t *testing.T) {
	fetcher := newMockedFetcher(t)

	httpmock.RegisterResponder(http.MethodGet, "http://assets.local/app.js",
		httpmock.NewErrorResponder(assert.AnError))

	_, err := fetcher.Fetch(context.Background(), "/app.js")
	require.Error(t, err)
}

func TestNewHTTPFetcher_RejectsBadRoot(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPFetcher("://not-a-url", time.Second)
	assert.Error(t, err)
}
