// Package notification implements the portal's notice board ("avisos"):
// stored notices with read state, live fan-out to SSE subscribers, and
// optional push delivery to external admin channels.
package notification

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notice.
type Type string

const (
	TypeRoute  Type = "route"
	TypeSystem Type = "system"
	TypeError  Type = "error"
)

// Priority orders notices for display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notice is one entry on the notice board.
type Notice struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Read      bool           `json:"read"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewNotice creates a notice with a fresh id and timestamp.
func NewNotice(t Type, p Priority, title, message string) *Notice {
	return &Notice{
		ID:        uuid.New().String(),
		Type:      t,
		Priority:  p,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithMetadata attaches a metadata key, returning the notice for chaining.
func (n *Notice) WithMetadata(key string, value any) *Notice {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// Clone returns an independent copy safe to marshal while the original
// keeps mutating under the service lock.
func (n *Notice) Clone() *Notice {
	out := *n
	if n.Metadata != nil {
		out.Metadata = maps.Clone(n.Metadata)
	}
	return &out
}
