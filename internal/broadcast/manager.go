package broadcast

import (
	"context"
	"sync"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/events"
	"github.com/actransporte/portal/internal/geoloc"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/observability/metrics"
)

// StartRequest carries a driver's intent to broadcast a route.
type StartRequest struct {
	Route  string
	Driver Driver
	// GeoAvailable is the device's report of whether a geolocation
	// capability exists at all.
	GeoAvailable bool
	// Confirmed is the explicit user confirmation. Declining is not an
	// error: Start returns no session and no error.
	Confirmed bool
}

// Manager supervises route sessions: at most one per driver, with
// "last action wins" semantics. Starting a route while one is already
// broadcasting stops the old session first, then opens the new one.
type Manager struct {
	sink    Sink
	opts    geoloc.Options
	log     logger.Logger
	metrics *metrics.BroadcastMetrics
	bus     *events.Bus

	mu        sync.Mutex
	sessions  map[string]*Session
	providers map[string]*geoloc.PushProvider
	// starts serializes Start per driver. m.mu cannot cover the whole
	// start, the confirmation upsert inside session.start blocks on the
	// sink.
	starts map[string]*sync.Mutex
}

// NewManager creates a session manager pushing to sink with the given
// acquisition options.
func NewManager(sink Sink, geo conf.GeoSettings, log logger.Logger, m *metrics.BroadcastMetrics, bus *events.Bus) *Manager {
	return &Manager{
		sink: sink,
		opts: geoloc.Options{
			HighAccuracy:     geo.HighAccuracy,
			MaxSampleAge:     geo.MaxSampleAge,
			PerSampleTimeout: geo.PerSampleTimeout,
		},
		log:       log,
		metrics:   m,
		bus:       bus,
		sessions:  make(map[string]*Session),
		providers: make(map[string]*geoloc.PushProvider),
		starts:    make(map[string]*sync.Mutex),
	}
}

// Provider returns the driver's position feed, creating it on first use.
// The portal API routes the device's POSTed readings into it.
func (m *Manager) Provider(driverID string) *geoloc.PushProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[driverID]
	if !ok {
		p = geoloc.NewPushProvider()
		m.providers[driverID] = p
	}
	return p
}

// Start opens a route session for the request's driver. Preconditions run
// in order: geolocation capability, authenticated driver, permission not
// denied, explicit confirmation. A declined confirmation returns (nil,
// nil), a no-op back to idle. An existing broadcasting session for the
// same driver is stopped first.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if !req.GeoAvailable {
		return nil, errors.New(ErrCapabilityMissing).
			Component("broadcast").
			Category(errors.CategoryCapability).
			Build()
	}
	if req.Driver.ID == "" {
		return nil, errors.Newf("no authenticated driver").
			Component("broadcast").
			Category(errors.CategoryAuth).
			Build()
	}

	provider := m.Provider(req.Driver.ID)
	if provider.Permission(ctx) == geoloc.PermissionDenied {
		return nil, errors.New(ErrPermissionDenied).
			Component("broadcast").
			Category(errors.CategoryPermission).
			Context("driver", req.Driver.ID).
			Build()
	}

	if !req.Confirmed {
		m.log.Info("route start declined by user",
			logger.String("driver", req.Driver.ID),
			logger.String("route", req.Route))
		return nil, nil
	}

	// Hold the driver's start lock from the existing-session check through
	// the map write. Without it, two concurrent Starts both see no session
	// and the loser broadcasts orphaned outside m.sessions, unreachable by
	// Stop and Shutdown.
	start := m.startLock(req.Driver.ID)
	start.Lock()
	defer start.Unlock()

	// Last action wins: replace an existing session for this driver.
	m.mu.Lock()
	existing := m.sessions[req.Driver.ID]
	m.mu.Unlock()
	if existing != nil && existing.State() != StateStopped {
		existing.stop(stopReasonRestarted)
	}

	session := newSession(req.Route, req.Driver, provider, m.sink, m.opts, m.log, m.metrics, m.bus)
	if err := session.start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[req.Driver.ID] = session
	m.mu.Unlock()
	return session, nil
}

// startLock returns the driver's start serialization lock, creating it on
// first use.
func (m *Manager) startLock(driverID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.starts[driverID]
	if !ok {
		l = &sync.Mutex{}
		m.starts[driverID] = l
	}
	return l
}

// Stop ends the driver's session if one exists. Idempotent: stopping a
// driver with no session, or twice, is a no-op.
func (m *Manager) Stop(driverID string) {
	m.mu.Lock()
	session := m.sessions[driverID]
	m.mu.Unlock()
	if session != nil {
		session.Stop()
	}
}

// Session returns the driver's current session, nil if none.
func (m *Manager) Session(driverID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[driverID]
}

// Shutdown stops every open session. Called on server teardown so each
// sink record gets its terminal marker.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}
