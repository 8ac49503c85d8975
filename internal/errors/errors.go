// Package errors provides enhanced error handling for the portal. It wraps
// the standard library errors package (Is/As/Join keep working on enhanced
// errors) and adds component and category metadata plus optional telemetry
// reporting, so failures carry enough context to be routed: shown to the
// user, retried, or swallowed per the error policy.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies a failure for propagation policy decisions.
type Category string

const (
	// CategoryCapability marks a missing platform capability. Not
	// recoverable; surfaced to the user without retry.
	CategoryCapability Category = "capability-missing"
	// CategoryPermission marks a denied permission. The user must act
	// outside the app; no automatic retry.
	CategoryPermission Category = "permission-denied"
	// CategoryNotFound marks a lookup that found no record.
	CategoryNotFound Category = "not-found"
	// CategoryRecordInvalid marks a record that exists but fails
	// validation (inactive, wrong role).
	CategoryRecordInvalid Category = "record-invalid"
	// CategoryNetwork marks a transient network failure, recoverable via a
	// local fallback where one exists.
	CategoryNetwork Category = "network-transient"
	// CategorySinkWrite marks a best-effort sink push failure. Logged only;
	// never cancels the operation that produced it.
	CategorySinkWrite Category = "sink-write"
	// CategoryConfig marks invalid or missing configuration.
	CategoryConfig Category = "configuration"
	// CategoryAuth marks an authentication failure.
	CategoryAuth Category = "authentication"
	// CategoryGeneric is the fallback when no category was assigned.
	CategoryGeneric Category = "generic"
)

// EnhancedError is an error with component and category metadata.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

// Error implements the error interface.
func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// Unwrap supports errors.Is/As chains through the enhanced wrapper.
func (e *EnhancedError) Unwrap() error { return e.Err }

// GetComponent returns the component that produced the error.
func (e *EnhancedError) GetComponent() string { return e.component }

// GetCategory returns the error's category.
func (e *EnhancedError) GetCategory() Category { return e.category }

// GetContext returns a context value attached via the builder.
func (e *EnhancedError) GetContext(key string) (any, bool) {
	v, ok := e.context[key]
	return v, ok
}

// Builder assembles an EnhancedError.
type Builder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New starts building an enhanced error from an existing error.
func New(err error) *Builder {
	return &Builder{err: err, category: CategoryGeneric}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component records the subsystem reporting the error.
func (b *Builder) Component(component string) *Builder {
	b.component = component
	return b
}

// Category assigns the error's category.
func (b *Builder) Category(category Category) *Builder {
	b.category = category
	return b
}

// Context attaches a key/value pair for diagnostics.
func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the enhanced error and reports it to telemetry if a
// reporter is installed.
func (b *Builder) Build() error {
	e := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
	}
	report(e)
	return e
}

// CategoryOf returns the category of err, or CategoryGeneric when err is not
// an enhanced error.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.GetCategory()
	}
	return CategoryGeneric
}

// Standard library re-exports so callers only import this package.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join wraps the given errors into a single error.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// NewStd creates a plain sentinel error with no metadata.
func NewStd(text string) error { return stderrors.New(text) }
