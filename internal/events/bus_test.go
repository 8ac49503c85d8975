package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	var mu sync.Mutex
	var got []*Event
	done := make(chan struct{}, 2)
	bus.Subscribe(func(e *Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.Publish(&Event{Name: EventRouteStarted, DriverID: "M123", Route: "ROTA 01"})
	bus.Publish(&Event{Name: EventRouteStopped, DriverID: "M123", Route: "ROTA 01"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("event not dispatched")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, EventRouteStarted, got[0].Name)
	assert.Equal(t, EventRouteStopped, got[1].Name)
	assert.False(t, got[0].Timestamp.IsZero(), "publish stamps the event")
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	// No subscriber drains; flooding beyond the buffer must still return.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < busBufferSize*2; i++ {
			bus.Publish(&Event{Name: EventRouteStarted})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}
}

func TestBus_PanickingHandlerDoesNotKillWorker(t *testing.T) {
	bus := NewBus()
	defer bus.Stop()

	delivered := make(chan struct{}, 1)
	bus.Subscribe(func(e *Event) {
		if e.Name == "boom" {
			panic("handler exploded")
		}
		delivered <- struct{}{}
	})

	bus.Publish(&Event{Name: "boom"})
	bus.Publish(&Event{Name: EventRouteStarted})

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("worker died after handler panic")
	}
}

func TestBus_StopIsIdempotent(t *testing.T) {
	bus := NewBus()
	bus.Stop()
	bus.Stop()

	// Publishing after stop must not panic.
	bus.Publish(&Event{Name: EventRouteStarted})
}
