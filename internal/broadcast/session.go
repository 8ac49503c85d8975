package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/events"
	"github.com/actransporte/portal/internal/geoloc"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/observability/metrics"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateBroadcasting
	StateStopped
)

// String returns the state name for logs and API responses.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateBroadcasting:
		return "broadcasting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stop reasons reported in metrics and events.
const (
	stopReasonRequested  = "requested"
	stopReasonWatchError = "watch_error"
	stopReasonRestarted  = "restarted"
)

// terminalWriteTimeout bounds the best-effort inactive upsert on stop.
const terminalWriteTimeout = 3 * time.Second

// ErrPermissionDenied is returned by start when the platform reports the
// geolocation permission as denied. The user must act outside the app; no
// retry is attempted.
var ErrPermissionDenied = errors.NewStd("broadcast: geolocation permission denied")

// ErrCapabilityMissing is returned when the device has no geolocation
// capability at all.
var ErrCapabilityMissing = errors.NewStd("broadcast: geolocation not supported")

// Session is one driver's active broadcast: route name, identity, and the
// watch handle, owned exclusively by this instance.
type Session struct {
	Route  string
	Driver Driver

	provider geoloc.Provider
	sink     Sink
	opts     geoloc.Options
	log      logger.Logger
	metrics  *metrics.BroadcastMetrics
	bus      *events.Bus

	mu    sync.Mutex
	state State
	watch geoloc.Watch
	// terminalSent guards the at-most-once inactive upsert.
	terminalSent bool
}

func newSession(route string, driver Driver, provider geoloc.Provider, sink Sink, opts geoloc.Options, log logger.Logger, m *metrics.BroadcastMetrics, bus *events.Bus) *Session {
	return &Session{
		Route:    route,
		Driver:   driver,
		provider: provider,
		sink:     sink,
		opts:     opts,
		log: log.With(
			logger.String("driver", driver.ID),
			logger.String("route", route)),
		metrics: m,
		bus:     bus,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// start runs the precondition chain and opens the broadcast. On any
// precondition failure the session reverts to Idle and the error says why.
// On success the sink holds at least one active record for the driver and
// the continuous watch is live.
func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateStarting
	s.mu.Unlock()

	// Permission pre-check. Denied aborts before any sink write or watch;
	// prompt/granted/unknown proceed and fail at acquisition if need be.
	if s.provider.Permission(ctx) == geoloc.PermissionDenied {
		s.revertIdle()
		return errors.New(ErrPermissionDenied).
			Component("broadcast").
			Category(errors.CategoryPermission).
			Context("driver", s.Driver.ID).
			Build()
	}

	// One confirmation sample, bounded by the per-sample timeout, pushed
	// to the sink before the session is declared active. The sink is
	// guaranteed at least one record even if the watch dies immediately.
	sampleCtx, cancel := context.WithTimeout(ctx, s.opts.PerSampleTimeout.Std())
	sample, err := s.provider.CurrentPosition(sampleCtx, s.opts)
	cancel()
	if err != nil {
		s.revertIdle()
		return err
	}
	if err := s.sink.Upsert(ctx, s.record(sample, true)); err != nil {
		s.revertIdle()
		return err
	}

	watch, err := s.provider.WatchPosition(ctx, s.opts, s.onSample, s.onWatchError)
	if err != nil {
		// The sink already has an active record; stop cleanly so it gets
		// the terminal marker.
		s.mu.Lock()
		s.state = StateBroadcasting
		s.mu.Unlock()
		s.stop(stopReasonWatchError)
		return err
	}

	s.mu.Lock()
	s.watch = watch
	s.state = StateBroadcasting
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	s.publish(events.EventRouteStarted, nil)
	s.log.Info("route broadcast started")
	return nil
}

// onSample forwards one delivered sample to the sink. Forwarding failures
// are logged and swallowed: a transient push failure must not kill the
// session, the loop keeps trying on subsequent samples.
func (s *Session) onSample(sample geoloc.Sample) {
	s.mu.Lock()
	broadcasting := s.state == StateBroadcasting
	s.mu.Unlock()
	if !broadcasting {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PerSampleTimeout.Std())
	defer cancel()
	if err := s.sink.Upsert(ctx, s.record(sample, true)); err != nil {
		if s.metrics != nil {
			s.metrics.SinkFailure(s.sink.Name())
		}
		s.log.Warn("sample forward failed, keeping session alive",
			logger.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.SampleForwarded()
	}
}

// onWatchError handles a subscription-level failure (permission revoked,
// device gone): report and stop the session.
func (s *Session) onWatchError(err error) {
	if s.metrics != nil {
		s.metrics.WatchError()
	}
	s.log.Error("watch failed, stopping route broadcast", logger.Error(err))
	s.publish(events.EventRouteWatchError, map[string]any{"error": err.Error()})
	s.stop(stopReasonWatchError)
}

// Stop ends the session: cancels the watch so no further samples are
// forwarded after return, then sends one best-effort terminal upsert
// (active=false). Idempotent; a second call is a no-op.
func (s *Session) Stop() {
	s.stop(stopReasonRequested)
}

func (s *Session) stop(reason string) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	wasBroadcasting := s.state == StateBroadcasting
	s.state = StateStopped
	watch := s.watch
	s.watch = nil
	sendTerminal := !s.terminalSent
	s.terminalSent = true
	s.mu.Unlock()

	if watch != nil {
		watch.Clear()
	}

	if sendTerminal {
		// Best-effort: a sink failure here is logged, never blocks the
		// stop transition.
		ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
		defer cancel()
		rec := s.record(geoloc.Sample{CapturedAt: time.Now()}, false)
		if err := s.sink.Upsert(ctx, rec); err != nil {
			if s.metrics != nil {
				s.metrics.SinkFailure(s.sink.Name())
			}
			s.log.Warn("terminal upsert failed", logger.Error(err))
		}
	}

	if wasBroadcasting && s.metrics != nil {
		s.metrics.SessionStopped(reason)
	}
	s.publish(events.EventRouteStopped, map[string]any{"reason": reason})
	s.log.Info("route broadcast stopped", logger.String("reason", reason))
}

func (s *Session) revertIdle() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

func (s *Session) record(sample geoloc.Sample, active bool) LocationRecord {
	return LocationRecord{
		Driver: s.Driver,
		Route:  s.Route,
		Sample: sample,
		Active: active,
	}
}

func (s *Session) publish(name string, props map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(&events.Event{
		Name:       name,
		DriverID:   s.Driver.ID,
		DriverName: s.Driver.Name,
		Route:      s.Route,
		Properties: props,
	})
}
