package errors

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter receives enhanced errors as they are built. Installed once at
// startup when telemetry is enabled.
type Reporter interface {
	Report(e *EnhancedError)
}

var (
	reporterMu sync.RWMutex
	reporter   Reporter
)

// SetReporter installs the telemetry reporter. Passing nil disables
// reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

func report(e *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r.Report(e)
	}
}

// sentryReporter forwards enhanced errors to Sentry, tagged with component
// and category so events group by subsystem rather than by message.
type sentryReporter struct{}

func (sentryReporter) Report(e *EnhancedError) {
	sentry.WithScope(func(scope *sentry.Scope) {
		if e.component != "" {
			scope.SetTag("component", e.component)
		}
		scope.SetTag("category", string(e.category))
		for k, v := range e.context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(e)
	})
}

// InitSentry initializes Sentry with the given DSN and installs the Sentry
// reporter. An empty DSN leaves telemetry disabled.
func InitSentry(dsn string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
	}); err != nil {
		return err
	}
	SetReporter(sentryReporter{})
	return nil
}

// FlushSentry waits for buffered telemetry events to be sent on shutdown.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}
