package geoloc

import (
	"context"
	"sync"
	"time"

	"github.com/actransporte/portal/internal/errors"
)

// ErrNoRecentSample is returned by CurrentPosition when no sufficiently
// fresh sample arrived within the per-sample timeout.
var ErrNoRecentSample = errors.NewStd("geoloc: no recent position sample")

// PushProvider implements Provider for server-side sessions: the driver's
// device POSTs raw position readings (and its reported permission state)
// through the portal API, and the provider replays them to whoever is
// watching. One PushProvider exists per driver device.
type PushProvider struct {
	mu         sync.Mutex
	permission PermissionState
	latest     *Sample
	waiters    []chan Sample
	watchers   map[*pushWatch]struct{}
}

// NewPushProvider creates a provider with no samples and an unknown
// permission state.
func NewPushProvider() *PushProvider {
	return &PushProvider{
		permission: PermissionUnknown,
		watchers:   make(map[*pushWatch]struct{}),
	}
}

// Push feeds one device reading into the provider, waking any pending
// CurrentPosition call and fanning out to open watches.
func (p *PushProvider) Push(sample Sample) {
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now()
	}

	p.mu.Lock()
	p.latest = &sample
	waiters := p.waiters
	p.waiters = nil
	watchers := make([]*pushWatch, 0, len(p.watchers))
	for w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- sample
	}
	for _, w := range watchers {
		w.deliver(sample)
	}
}

// PushError reports a device-side subscription failure (e.g. permission
// revoked mid-session) to every open watch and closes them.
func (p *PushProvider) PushError(err error) {
	p.mu.Lock()
	watchers := make([]*pushWatch, 0, len(p.watchers))
	for w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.mu.Unlock()

	for _, w := range watchers {
		w.fail(err)
	}
}

// SetPermission records the device-reported permission state.
func (p *PushProvider) SetPermission(state PermissionState) {
	p.mu.Lock()
	p.permission = state
	p.mu.Unlock()
}

// Permission implements Provider.
func (p *PushProvider) Permission(_ context.Context) PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// CurrentPosition implements Provider. A buffered sample younger than
// MaxSampleAge is returned immediately; otherwise the call blocks for the
// next pushed reading, bounded by PerSampleTimeout.
func (p *PushProvider) CurrentPosition(ctx context.Context, opts Options) (Sample, error) {
	p.mu.Lock()
	if p.latest != nil && freshEnough(*p.latest, opts) {
		s := *p.latest
		p.mu.Unlock()
		return s, nil
	}
	ch := make(chan Sample, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	timeout := opts.PerSampleTimeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-ch:
		return s, nil
	case <-timer.C:
		p.dropWaiter(ch)
		return Sample{}, errors.New(ErrNoRecentSample).
			Component("geoloc").
			Category(errors.CategoryNetwork).
			Context("timeout", timeout.String()).
			Build()
	case <-ctx.Done():
		p.dropWaiter(ch)
		return Sample{}, ctx.Err()
	}
}

func (p *PushProvider) dropWaiter(ch chan Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// WatchPosition implements Provider.
func (p *PushProvider) WatchPosition(_ context.Context, opts Options, onSample func(Sample), onError func(error)) (Watch, error) {
	w := &pushWatch{
		provider: p,
		opts:     opts,
		onSample: onSample,
		onError:  onError,
	}
	p.mu.Lock()
	p.watchers[w] = struct{}{}
	p.mu.Unlock()
	return w, nil
}

type pushWatch struct {
	provider *PushProvider
	opts     Options
	onSample func(Sample)
	onError  func(error)

	mu      sync.Mutex
	cleared bool
}

// deliver forwards a sample unless the watch was cleared or the sample is
// stale. The callback runs under the watch lock so Clear can guarantee no
// delivery happens after it returns.
func (w *pushWatch) deliver(sample Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cleared {
		return
	}
	if !freshEnough(sample, w.opts) {
		return
	}
	w.onSample(sample)
}

// fail ends the watch with an error. The watch is marked cleared before
// the callback runs so the error handler may call Clear without
// deadlocking; at most one of fail and Clear wins.
func (w *pushWatch) fail(err error) {
	w.provider.remove(w)
	w.mu.Lock()
	if w.cleared {
		w.mu.Unlock()
		return
	}
	w.cleared = true
	onError := w.onError
	w.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// Clear implements Watch.
func (w *pushWatch) Clear() {
	w.mu.Lock()
	w.cleared = true
	w.mu.Unlock()
	w.provider.remove(w)
}

func (p *PushProvider) remove(w *pushWatch) {
	p.mu.Lock()
	delete(p.watchers, w)
	p.mu.Unlock()
}

func freshEnough(sample Sample, opts Options) bool {
	maxAge := opts.MaxSampleAge.Std()
	if maxAge <= 0 {
		return true
	}
	return time.Since(sample.CapturedAt) <= maxAge
}
