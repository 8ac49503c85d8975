package notification

import (
	"fmt"
	"sync"

	"github.com/actransporte/portal/internal/logger"
)

var (
	instance *Service
	once     sync.Once
	mu       sync.RWMutex
)

// Initialize sets up the global notice service instance.
func Initialize(cfg ServiceConfig, log logger.Logger) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		instance = NewService(cfg, log)
	})
}

// GetService returns the global notice service instance, nil before
// Initialize.
func GetService() *Service {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetServiceForTesting installs a custom service instance for tests. It
// fails if the service is already initialized.
func SetServiceForTesting(service *Service) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil && service != nil {
		return fmt.Errorf("notification service already initialized")
	}

	instance = service
	return nil
}

// IsInitialized reports whether the notice service is available.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return instance != nil
}
