package internal

import (
	"slices"
	"sync"
)

// Registry maps backend names to factories. Packages fill it from init
// functions and read it while loading configuration.
type Registry[T any] struct {
	mu    sync.RWMutex
	impls map[string]T
}

// Register adds impl under name, replacing any earlier registration.
func (r *Registry[T]) Register(name string, impl T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.impls == nil {
		r.impls = map[string]T{}
	}
	r.impls[name] = impl
}

func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.impls[name]
	return impl, ok
}

// Names lists every registered name in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.impls))
	for name := range r.impls {
		result = append(result, name)
	}
	slices.Sort(result)

	return result
}
