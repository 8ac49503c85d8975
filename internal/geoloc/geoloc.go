// Package geoloc defines the geolocation contract the broadcast loop runs
// against: a one-shot bounded position read, a continuous watch with an
// idempotent cancel, and an optional permission query.
package geoloc

import (
	"context"
	"time"

	"github.com/actransporte/portal/internal/conf"
)

// PermissionState mirrors the platform permission query result.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionPrompt  PermissionState = "prompt"
	PermissionDenied  PermissionState = "denied"
	// PermissionUnknown means no permission-query capability exists; the
	// caller proceeds and handles denial at acquisition time.
	PermissionUnknown PermissionState = "unknown"
)

// Sample is one geolocation reading. Speed, when the platform provides it,
// is in meters per second.
type Sample struct {
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	Speed      *float64
	CapturedAt time.Time
}

// Options bound position acquisition.
type Options struct {
	HighAccuracy     bool
	MaxSampleAge     conf.Duration
	PerSampleTimeout conf.Duration
}

// Watch is a continuous position subscription handle.
type Watch interface {
	// Clear cancels the subscription. Idempotent; no sample or error
	// callback runs after Clear returns.
	Clear()
}

// Provider is the platform geolocation capability.
type Provider interface {
	// Permission queries the current permission state where the platform
	// supports it; PermissionUnknown otherwise.
	Permission(ctx context.Context) PermissionState

	// CurrentPosition acquires exactly one sample no older than
	// MaxSampleAge, bounded by PerSampleTimeout.
	CurrentPosition(ctx context.Context, opts Options) (Sample, error)

	// WatchPosition opens a continuous subscription. Delivered samples go
	// to onSample; subscription-level failures (permission revoked, device
	// gone) go to onError and end the subscription.
	WatchPosition(ctx context.Context, opts Options, onSample func(Sample), onError func(error)) (Watch, error)
}
