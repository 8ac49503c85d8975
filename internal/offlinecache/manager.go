package offlinecache

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/observability/metrics"
)

// Routing policies reported in logs and metrics.
const (
	policyCacheFirst   = "cache-first"
	policyNetworkFirst = "network-first"
)

var (
	// ErrPassThrough signals that the manager does not intercept this
	// request; the caller must forward it untouched.
	ErrPassThrough = errors.NewStd("offlinecache: request not intercepted")
	// ErrNotInstalled is returned by Activate before a successful Install.
	ErrNotInstalled = errors.NewStd("offlinecache: no generation installed")
	// ErrWaiting is returned by Activate while the installed generation is
	// still staged behind an active one and skip-waiting was not requested.
	ErrWaiting = errors.NewStd("offlinecache: installed generation is waiting")
)

// Config holds the manager's static parameters.
type Config struct {
	// Version names the cache generation this manager installs.
	Version string
	// Manifest lists the asset paths the generation must contain.
	Manifest []string
	// OfflinePage is the navigation fallback path. Must be a manifest entry
	// to be servable offline.
	OfflinePage string
	// PassThroughPrefixes are path prefixes never intercepted (backend API
	// calls go straight to the network).
	PassThroughPrefixes []string
	// SkipWaiting, when set, lets a freshly installed generation activate
	// immediately instead of staying staged behind the active one. Matches
	// the shipped frontend behavior.
	SkipWaiting bool
}

// Manager owns one versioned asset cache generation and routes requests
// against it.
type Manager struct {
	cfg     Config
	storage Storage
	fetcher Fetcher
	log     logger.Logger
	metrics *metrics.CacheMetrics

	manifest map[string]struct{}

	mu        sync.Mutex
	installed bool
	waiting   bool
	active    string
}

// NewManager creates a manager over the given storage and network fetcher.
// metrics may be nil.
func NewManager(cfg Config, storage Storage, fetcher Fetcher, log logger.Logger, m *metrics.CacheMetrics) *Manager {
	manifest := make(map[string]struct{}, len(cfg.Manifest))
	for _, path := range cfg.Manifest {
		manifest[path] = struct{}{}
	}
	return &Manager{
		cfg:      cfg,
		storage:  storage,
		fetcher:  fetcher,
		log:      log,
		metrics:  m,
		manifest: manifest,
	}
}

// Install fetches every manifest asset and stores it in the cache named by
// the configured version. Semantics are all-or-nothing: if any fetch fails
// or returns an uncacheable response, nothing is committed, the new
// generation is discarded, and the previous generation stays authoritative.
func (m *Manager) Install(ctx context.Context) error {
	staged := make(map[string]*Response, len(m.cfg.Manifest))
	for _, path := range m.cfg.Manifest {
		resp, err := m.fetcher.Fetch(ctx, path)
		if err != nil {
			m.abortInstall(path, err)
			return err
		}
		if !resp.Cacheable() {
			err := errors.Newf("asset %s returned status %d", path, resp.Status).
				Component("offlinecache").
				Category(errors.CategoryNetwork).
				Build()
			m.abortInstall(path, err)
			return err
		}
		staged[path] = resp
	}

	cache := m.storage.Open(m.cfg.Version)
	for path, resp := range staged {
		cache.Put(path, resp)
	}

	m.mu.Lock()
	m.installed = true
	m.waiting = !m.cfg.SkipWaiting
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordInstall(len(staged))
	}
	m.log.Info("cache generation installed",
		logger.String("version", m.cfg.Version),
		logger.Int("assets", len(staged)))
	return nil
}

func (m *Manager) abortInstall(path string, err error) {
	// Discard any partial generation from a previous failed attempt under
	// the same name.
	m.storage.Delete(m.cfg.Version)
	if m.metrics != nil {
		m.metrics.RecordInstallFailure()
	}
	m.log.Error("cache install aborted, previous generation stays active",
		logger.String("version", m.cfg.Version),
		logger.String("asset", path),
		logger.Error(err))
}

// SkipWaiting releases a staged generation so the next Activate promotes it
// without waiting.
func (m *Manager) SkipWaiting() {
	m.mu.Lock()
	m.waiting = false
	m.mu.Unlock()
}

// Activate deletes every cache generation other than the installed one and
// then claims it as the sole serving generation. Install must have
// completed first; no request is served from a stale generation once
// Activate returns.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.Lock()
	if !m.installed {
		m.mu.Unlock()
		return ErrNotInstalled
	}
	if m.waiting {
		m.mu.Unlock()
		return ErrWaiting
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	evicted := 0
	for _, name := range m.storage.Names() {
		if name == m.cfg.Version {
			continue
		}
		if m.storage.Delete(name) {
			evicted++
		}
	}

	m.mu.Lock()
	m.active = m.cfg.Version
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordActivation(evicted)
	}
	m.log.Info("cache generation activated",
		logger.String("version", m.cfg.Version),
		logger.Int("evicted", evicted))
	return nil
}

// Active returns the currently serving generation name, empty before
// activation.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Intercepts reports whether the manager handles this request at all. Only
// same-origin GETs outside the pass-through prefixes are intercepted.
func (m *Manager) Intercepts(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	for _, prefix := range m.cfg.PassThroughPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return false
		}
	}
	return true
}

// Handle resolves a request against the active generation. It returns
// ErrPassThrough for requests the manager does not intercept. Network
// failures are recovered locally (cache fallback or the offline page for
// navigations); they are never surfaced as hard failures for intercepted
// requests with a fallback available.
func (m *Manager) Handle(ctx context.Context, req *http.Request) (*Response, error) {
	if !m.Intercepts(req) {
		return nil, ErrPassThrough
	}

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active == "" {
		return nil, ErrPassThrough
	}

	key := RequestKey(req)
	if _, ok := m.manifest[key]; ok {
		return m.handleCacheFirst(ctx, active, key, isNavigation(req))
	}
	return m.handleNetworkFirst(ctx, active, key, isNavigation(req))
}

// handleCacheFirst serves manifest assets: the cached entry wins, and a
// network fetch happens only on a miss. A valid same-origin 200 fetched on
// miss is stored before being returned.
func (m *Manager) handleCacheFirst(ctx context.Context, generation, key string, navigate bool) (*Response, error) {
	cache := m.storage.Open(generation)
	if resp, ok := cache.Match(key); ok {
		if m.metrics != nil {
			m.metrics.RecordHit(policyCacheFirst)
		}
		return resp, nil
	}

	if m.metrics != nil {
		m.metrics.RecordMiss(policyCacheFirst)
	}
	resp, err := m.fetcher.Fetch(ctx, key)
	if err != nil {
		return m.offlineFallback(generation, key, navigate, err)
	}
	if resp.Cacheable() {
		cache.Put(key, resp.Clone())
	}
	return resp, nil
}

// handleNetworkFirst serves everything else: the network response wins even
// when a stale cached copy exists; the cache is consulted only when the
// network fails.
func (m *Manager) handleNetworkFirst(ctx context.Context, generation, key string, navigate bool) (*Response, error) {
	resp, err := m.fetcher.Fetch(ctx, key)
	if err == nil {
		if resp.Cacheable() {
			m.storage.Open(generation).Put(key, resp.Clone())
		}
		return resp, nil
	}

	if cached, ok := m.storage.Open(generation).Match(key); ok {
		if m.metrics != nil {
			m.metrics.RecordHit(policyNetworkFirst)
		}
		m.log.Debug("network failed, served from cache",
			logger.String("key", key),
			logger.Error(err))
		return cached, nil
	}
	return m.offlineFallback(generation, key, navigate, err)
}

// offlineFallback answers a request whose network and cache lookups both
// failed: navigations get the offline page, everything else a plain 503.
func (m *Manager) offlineFallback(generation, key string, navigate bool, cause error) (*Response, error) {
	if m.metrics != nil {
		m.metrics.RecordOfflineFallback()
	}
	if navigate {
		if page, ok := m.storage.Open(generation).Match(m.cfg.OfflinePage); ok {
			m.log.Warn("serving offline page",
				logger.String("key", key),
				logger.Error(cause))
			return page, nil
		}
	}
	return &Response{
		Status:     http.StatusServiceUnavailable,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte("Offline"),
		SameOrigin: true,
	}, nil
}

// isNavigation reports whether the request is a page navigation, using the
// fetch-metadata header with an Accept sniff as fallback for older agents.
func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
