//go:build integration

package containers

import (
	"fmt"
	"sync"
	"testing"
)

// CleanupManager runs cleanup of test resources in LIFO order, continuing
// past individual failures and collecting every error.
type CleanupManager struct {
	mu       sync.Mutex
	cleanups []cleanupFunc
}

type cleanupFunc struct {
	name string
	fn   func() error
}

// NewCleanupManager creates an empty CleanupManager.
func NewCleanupManager() *CleanupManager {
	return &CleanupManager{}
}

// Add registers a named cleanup function. Functions run last added first.
func (cm *CleanupManager) Add(name string, fn func() error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.cleanups = append(cm.cleanups, cleanupFunc{name: name, fn: fn})
}

// Cleanup executes all registered functions in LIFO order. Run without
// holding the lock so a cleanup may itself call Add.
func (cm *CleanupManager) Cleanup() []error {
	cm.mu.Lock()
	cleanupsCopy := make([]cleanupFunc, len(cm.cleanups))
	copy(cleanupsCopy, cm.cleanups)
	cm.cleanups = nil
	cm.mu.Unlock()

	var errors []error
	for i := len(cleanupsCopy) - 1; i >= 0; i-- {
		cleanup := cleanupsCopy[i]
		if err := cleanup.fn(); err != nil {
			errors = append(errors, fmt.Errorf("%s cleanup failed: %w", cleanup.name, err))
		}
	}
	return errors
}

// RegisterTestCleanup wires the manager into t.Cleanup so cleanup happens
// even when a test panics.
func (cm *CleanupManager) RegisterTestCleanup(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		for _, err := range cm.Cleanup() {
			t.Errorf("Cleanup error: %v", err)
		}
	})
}
