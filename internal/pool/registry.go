package pool

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages discoverer registration and lookup
type Registry struct {
	mu          sync.RWMutex
	discoverers map[string]Discoverer
}

// NewRegistry creates a new discoverer registry
func NewRegistry() *Registry {
	return &Registry{
		discoverers: make(map[string]Discoverer),
	}
}

// Register adds a discoverer to the registry
func (r *Registry) Register(d Discoverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverers[d.Type()] = d
}

// Get retrieves a discoverer
func (r *Registry) Get(poolType string) (Discoverer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.discoverers[poolType]
	if !ok {
		return nil, fmt.Errorf("no discoverer registered for pool type: %s", poolType)
	}
	return d, nil
}

// Has checks if a discoverer is registered
func (r *Registry) Has(poolType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.discoverers[poolType]
	return ok
}

// Types returns all registered pool types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.discoverers))
	for t := range r.discoverers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
