// Package offlinecache implements the portal's versioned offline asset
// cache: a named cache generation is installed from a fixed manifest,
// activated by evicting every other generation, and consulted per-request
// with cache-first routing for manifest assets and network-first routing
// with offline fallback for everything else.
package offlinecache

import (
	"net/http"
	"time"
)

// Response is one stored (or fetched) response for a request key.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	// SameOrigin is false for responses fetched from a foreign origin.
	// Such responses are served but never cached.
	SameOrigin bool
	StoredAt   time.Time
}

// Cacheable reports whether the response qualifies for storage: a
// successful same-origin response. Errors and cross-origin responses are
// never cached.
func (r *Response) Cacheable() bool {
	return r != nil && r.Status == http.StatusOK && r.SameOrigin
}

// Clone returns an independent copy so a response can be stored and
// returned to the caller without sharing the body slice.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{
		Status:     r.Status,
		Header:     r.Header.Clone(),
		Body:       make([]byte, len(r.Body)),
		SameOrigin: r.SameOrigin,
		StoredAt:   r.StoredAt,
	}
	copy(out.Body, r.Body)
	return out
}

// RequestKey derives the cache key for a GET request. Entries are keyed by
// path so a later fetch of the same asset overwrites the stored copy.
func RequestKey(req *http.Request) string {
	return req.URL.Path
}
