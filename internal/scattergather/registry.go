package scattergather

import (
	"sort"
	"strings"
	"sync"

	"github.com/R3E-Network/composition_layer/internal/config"
)

// HTTPGathererType is the type discriminator of the built-in HTTP gatherer.
const HTTPGathererType = "http"

// GathererFactory builds a gatherer from its configuration section.
//
// Factories run once per configured gatherer while routes are loaded.
// They receive the root services and must only read the gatherer's own
// fields; anything request-scoped is resolved later inside Gather.
type GathererFactory func(section config.Section, services *Services) (Gatherer, error)

// FactoryRegistry maps case-insensitive type names to gatherer factories.
// Entries are added during startup; Seal freezes the registry before serving.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]GathererFactory
	sealed    bool
}

// NewFactoryRegistry creates a registry holding the built-in "http" factory.
func NewFactoryRegistry() *FactoryRegistry {
	r := &FactoryRegistry{factories: make(map[string]GathererFactory)}
	r.factories[HTTPGathererType] = HTTPGathererFactory
	return r
}

// Register adds a factory. Registering a type twice, in any letter case, fails.
func (r *FactoryRegistry) Register(typeName string, factory GathererFactory) error {
	name := normalizeName(typeName)
	if name == "" {
		return NewConfigError("", ErrMissingField, "gatherer type name is required")
	}
	if factory == nil {
		return NewConfigError(typeName, ErrMissingField, "gatherer factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return NewConfigError(typeName, ErrRegistrySealed, "cannot register gatherer factory")
	}
	if _, exists := r.factories[name]; exists {
		return NewConfigError(typeName, ErrDuplicateGathererFactory, "cannot register gatherer factory")
	}
	r.factories[name] = factory
	return nil
}

// TryGet returns the factory for typeName.
func (r *FactoryRegistry) TryGet(typeName string) (GathererFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[normalizeName(typeName)]
	return f, ok
}

// Types returns the registered type names in sorted order.
func (r *FactoryRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Seal rejects further registrations.
func (r *FactoryRegistry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *FactoryRegistry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
