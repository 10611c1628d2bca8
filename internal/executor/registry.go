package executor

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages executor registration and lookup
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates a new executor registry
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register adds an executor to the registry
func (r *Registry) Register(exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[exec.Type()] = exec
}

// Get retrieves the executor for the given transport
func (r *Registry) Get(transport string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[transport]
	if !ok {
		return nil, fmt.Errorf("no executor registered for transport: %s", transport)
	}
	return exec, nil
}

// Has checks if an executor is registered for the given transport
func (r *Registry) Has(transport string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.executors[transport]
	return ok
}

// Types returns all registered transports, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
