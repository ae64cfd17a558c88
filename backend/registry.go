package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Factory opens a new device.
type Factory func() (*Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for Default (first to open wins).
	backendPriority = []string{Native, Software}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device from the named backend.
func Open(name string) (*Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, name)
	}
	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
	}
	return d, nil
}

// Default opens the best available backend.
// Priority order: native > software > any other registered backend.
// The returned error joins the failure of every backend tried.
func Default() (*Device, error) {
	names := Available()
	order := make([]string, 0, len(names))
	for _, name := range backendPriority {
		if slices.Contains(names, name) {
			order = append(order, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	var errs []error
	for _, name := range order {
		d, err := Open(name)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, errors.Join(errs...)
}
