package doorbell

import "sort"

// Registry maps device keys to their controllers. It is populated once at
// startup and read-only afterwards, so lookups need no synchronization.
type Registry struct {
	controllers map[string]*Controller
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*Controller)}
}

// Add registers a controller under key.
func (r *Registry) Add(key string, c *Controller) {
	r.controllers[key] = c
}

// Lookup returns the controller for key.
func (r *Registry) Lookup(key string) (*Controller, bool) {
	c, ok := r.controllers[key]
	return c, ok
}

// Keys returns the registered device keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.controllers))
	for k := range r.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
