// Package drivers maps driver kinds named in configuration to constructors
package drivers

import (
	"fmt"
	"sync"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/internal/util"
)

// Factory builds a device from the options of a configured device entry
type Factory func(opts map[string]string) (devfs.Device, error)

// Registry holds the factories for every known driver kind
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register ties a factory to a driver kind. The first registration for a
// kind wins; later ones are ignored.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[kind]; ok {
		logger := util.GetLogger("Drivers")
		logger.Warn().Str("kind", kind).Msg("Driver already registered")
		return
	}
	r.factories[kind] = f
}

// Factory returns the factory registered for kind
func (r *Registry) Factory(kind string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no driver registered for %q", kind)
	}
	return f, nil
}

// New builds a device of the given kind
func (r *Registry) New(kind string, opts map[string]string) (devfs.Device, error) {
	f, err := r.Factory(kind)
	if err != nil {
		return nil, err
	}
	return f(opts)
}

// Kinds lists the registered driver kinds in no particular order
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}
