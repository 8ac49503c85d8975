package offlinecache

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/actransporte/portal/internal/errors"
)

// maxFetchBody bounds how much of an upstream response is buffered into a
// cache entry.
const maxFetchBody = 16 << 20

// Fetcher retrieves an asset over the network.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (*Response, error)
}

// HTTPFetcher fetches assets from the configured asset root with a shared
// HTTP client.
type HTTPFetcher struct {
	root   *url.URL
	client *http.Client
}

// NewHTTPFetcher creates a fetcher rooted at the given base URL. timeout
// bounds each individual fetch.
func NewHTTPFetcher(root string, timeout time.Duration) (*HTTPFetcher, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, errors.New(err).
			Component("offlinecache").
			Category(errors.CategoryConfig).
			Context("asset_root", root).
			Build()
	}
	return &HTTPFetcher{
		root:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch implements Fetcher. The returned response is marked SameOrigin only
// when it was served from the configured root host, so redirects to a
// foreign origin end up uncacheable.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) (*Response, error) {
	target := f.root.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("offlinecache").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, errors.New(err).
			Component("offlinecache").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}

	finalHost := f.root.Host
	if resp.Request != nil && resp.Request.URL != nil {
		finalHost = resp.Request.URL.Host
	}

	return &Response{
		Status:     resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		SameOrigin: strings.EqualFold(finalHost, f.root.Host),
		StoredAt:   time.Now(),
	}, nil
}
