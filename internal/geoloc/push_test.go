package geoloc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testOptions() Options {
	return Options{
		HighAccuracy:     true,
		MaxSampleAge:     conf.Duration(5 * time.Second),
		PerSampleTimeout: conf.Duration(200 * time.Millisecond),
	}
}

func sampleAt(lat, lon float64, capturedAt time.Time) Sample {
	return Sample{Latitude: lat, Longitude: lon, Accuracy: 10, CapturedAt: capturedAt}
}

func TestPushProvider_Permission(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	assert.Equal(t, PermissionUnknown, p.Permission(context.Background()))

	p.SetPermission(PermissionDenied)
	assert.Equal(t, PermissionDenied, p.Permission(context.Background()))

	p.SetPermission(PermissionGranted)
	assert.Equal(t, PermissionGranted, p.Permission(context.Background()))
}

func TestPushProvider_CurrentPosition_ReturnsFreshBufferedSample(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	p.Push(sampleAt(-3.1, -60.0, time.Now()))

	got, err := p.CurrentPosition(context.Background(), testOptions())
	require.NoError(t, err)
	assert.InDelta(t, -3.1, got.Latitude, 1e-9)
	assert.InDelta(t, -60.0, got.Longitude, 1e-9)
}

func TestPushProvider_CurrentPosition_WaitsForNextPushWhenStale(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	p.Push(sampleAt(0, 0, time.Now().Add(-time.Minute)))

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Push(sampleAt(-3.2, -60.1, time.Now()))
	}()

	got, err := p.CurrentPosition(context.Background(), testOptions())
	require.NoError(t, err)
	assert.InDelta(t, -3.2, got.Latitude, 1e-9)
}

func TestPushProvider_CurrentPosition_TimesOutWithoutSample(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	_, err := p.CurrentPosition(context.Background(), testOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRecentSample))
}

func TestPushProvider_CurrentPosition_HonorsContextCancellation(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	opts := testOptions()
	opts.PerSampleTimeout = conf.Duration(5 * time.Second)
	_, err := p.CurrentPosition(ctx, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPushProvider_WatchPosition_DeliversSamples(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	var mu sync.Mutex
	var got []Sample
	watch, err := p.WatchPosition(context.Background(), testOptions(), func(s Sample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer watch.Clear()

	p.Push(sampleAt(1, 1, time.Now()))
	p.Push(sampleAt(2, 2, time.Now()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.InDelta(t, 1.0, got[0].Latitude, 1e-9)
	assert.InDelta(t, 2.0, got[1].Latitude, 1e-9)
}

func TestPushProvider_WatchPosition_DropsStaleSamples(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	delivered := 0
	watch, err := p.WatchPosition(context.Background(), testOptions(), func(Sample) {
		delivered++
	}, nil)
	require.NoError(t, err)
	defer watch.Clear()

	p.Push(sampleAt(1, 1, time.Now().Add(-time.Minute)))
	assert.Zero(t, delivered)

	p.Push(sampleAt(2, 2, time.Now()))
	assert.Equal(t, 1, delivered)
}

func TestPushProvider_Watch_NoDeliveryAfterClear(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	delivered := 0
	watch, err := p.WatchPosition(context.Background(), testOptions(), func(Sample) {
		delivered++
	}, nil)
	require.NoError(t, err)

	watch.Clear()
	p.Push(sampleAt(1, 1, time.Now()))
	assert.Zero(t, delivered)

	// Clear is idempotent.
	watch.Clear()
}

func TestPushProvider_PushError_FailsOpenWatchesOnce(t *testing.T) {
	t.Parallel()

	p := NewPushProvider()
	var failures []error
	watch, err := p.WatchPosition(context.Background(), testOptions(), func(Sample) {}, func(err error) {
		failures = append(failures, err)
	})
	require.NoError(t, err)
	defer watch.Clear()

	cause := errors.NewStd("permission revoked")
	p.PushError(cause)
	p.PushError(cause)

	require.Len(t, failures, 1, "a failed watch must not fire again")
	assert.ErrorIs(t, failures[0], cause)

	// A failed watch receives no further samples either.
	p.Push(sampleAt(1, 1, time.Now()))
}

func TestFreshEnough(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	assert.True(t, freshEnough(sampleAt(0, 0, time.Now()), opts))
	assert.False(t, freshEnough(sampleAt(0, 0, time.Now().Add(-time.Minute)), opts))

	// Zero max age disables the freshness check.
	opts.MaxSampleAge = 0
	assert.True(t, freshEnough(sampleAt(0, 0, time.Now().Add(-time.Hour)), opts))
}
