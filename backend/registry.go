// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpusync/glbuf"
	"github.com/gogpu/gpusync/internal/logging"
)

// Backend names.
const (
	OpenGL = "opengl"
	Noop   = "noop"
)

var (
	// ErrNotRegistered is returned by Open for an unknown backend name.
	ErrNotRegistered = errors.New("backend: not registered")

	// ErrNotAvailable is returned by OpenDefault when no backend initializes.
	ErrNotAvailable = errors.New("backend: no backend available")
)

// Backend is an opened function table plus the resources behind it.
type Backend interface {
	// Name returns the name the backend was registered under.
	Name() string

	// Functions returns the table glbuf issues its calls through.
	Functions() glbuf.Functions

	// Close releases the device or context resources.
	Close()
}

// Factory opens a backend.
type Factory func() (Backend, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Selection order for OpenDefault: real GL first, the noop HAL device
	// last.
	priority = []string{OpenGL, Noop}
)

// Register registers a backend factory with the given name.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens the named backend.
func Open(name string) (Backend, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, err)
	}
	return b, nil
}

// OpenDefault opens the first backend in priority order that initializes,
// then any other registered backend in name order.
func OpenDefault() (Backend, error) {
	names := Available()
	order := make([]string, 0, len(names))
	for _, name := range priority {
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
		b, err := Open(name)
		if err == nil {
			return b, nil
		}
		logging.Logger().Debug("backend: unavailable", "name", name, "err", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrNotAvailable}, errs...)...)
}
