package llm

import (
	"fmt"
	"sync"

	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// Registry maps provider names to Provider implementations.
// It provides thread-safe registration and lookup.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under a name. If a provider already exists
// for the name, it is replaced. The first registration becomes the
// default until SetDefault names another.
func (r *Registry) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.providers) == 0 {
		r.defaultName = name
	}
	r.providers[name] = provider
}

// SetDefault names the provider Default returns.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// Get retrieves the provider for a name.
// Returns ErrProviderNotFound if no provider is registered for it.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forgeerrors.ErrProviderNotFound, name)
	}
	return provider, nil
}

// Default retrieves the default provider.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	name := r.defaultName
	r.mu.RUnlock()

	if name == "" {
		return nil, fmt.Errorf("%w: no providers registered", forgeerrors.ErrProviderNotFound)
	}
	return r.Get(name)
}

// Resolve returns the named provider, or the default when name is empty.
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		return r.Default()
	}
	return r.Get(name)
}

// Has checks if a provider is registered for the name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns all registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
