// Package events provides the portal's async event bus. Route lifecycle
// events flow from the broadcast loop to the notice board and push targets
// without the loop ever blocking on them.
package events

import (
	"sync"
	"time"
)

// Route lifecycle event names.
const (
	EventRouteStarted    = "route.started"
	EventRouteStopped    = "route.stopped"
	EventRouteWatchError = "route.watch_error"
)

// Event is one route lifecycle occurrence.
type Event struct {
	Name       string
	DriverID   string
	DriverName string
	Route      string
	Properties map[string]any
	Timestamp  time.Time
}

// Handler processes events.
type Handler func(event *Event)

// busBufferSize is the capacity of the async event channel. Events are
// dropped if the buffer is full to avoid blocking the broadcast loop.
const busBufferSize = 256

// Bus is an async pub/sub for route events. Publish is non-blocking:
// events go to a buffered channel and are dispatched by a worker
// goroutine, so the broadcast loop is never stalled by notice persistence
// or push delivery.
type Bus struct {
	handlers []Handler
	mu       sync.RWMutex
	eventCh  chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

// NewBus creates a bus and starts its worker.
func NewBus() *Bus {
	b := &Bus{
		eventCh: make(chan *Event, busBufferSize),
		stopCh:  make(chan struct{}),
	}
	b.done.Add(1)
	go b.processLoop()
	return b
}

// Subscribe registers a handler for all events.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event for async dispatch. Non-blocking: if the
// buffer is full the event is dropped. Events are discarded after Stop.
func (b *Bus) Publish(event *Event) {
	select {
	case <-b.stopCh:
		return
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	default:
		// Buffer full; drop rather than block the publisher.
	}
}

// Stop shuts down the worker after draining queued events. Safe to call
// multiple times.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.done.Wait()
}

func (b *Bus) processLoop() {
	defer b.done.Done()
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the bus goroutine.
func (b *Bus) safeCall(handler Handler, event *Event) {
	defer func() {
		_ = recover()
	}()
	handler(event)
}
