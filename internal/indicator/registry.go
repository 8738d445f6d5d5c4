package indicator

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages a named collection of indicators that can be looked up at
// runtime. It is safe for concurrent use.
type Registry struct {
	indicators map[string]Indicator
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		indicators: make(map[string]Indicator),
	}
}

// Register adds an indicator to the registry under its own name.
// If an indicator with the same name already exists it will be replaced.
func (r *Registry) Register(ind Indicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicators[ind.Name()] = ind
}

// Get retrieves an indicator by name. It returns an error when the name is
// not registered.
func (r *Registry) Get(name string) (Indicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ind, ok := r.indicators[name]
	if !ok {
		return nil, fmt.Errorf("indicator %q: not registered", name)
	}
	return ind, nil
}

// List returns the names of all registered indicators in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.indicators))
	for n := range r.indicators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every registered indicator in name-sorted order, so iteration
// order is stable across evaluations.
func (r *Registry) All() []Indicator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.indicators))
	for n := range r.indicators {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]Indicator, 0, len(names))
	for _, n := range names {
		out = append(out, r.indicators[n])
	}
	return out
}

// Defaults builds a registry with the full built-in indicator set.
func Defaults(p Params) *Registry {
	r := NewRegistry()
	r.Register(NewPriceAction(p))
	r.Register(NewVolume(p))
	r.Register(NewRSI(p))
	r.Register(NewMACD(p))
	r.Register(NewCandlePattern())
	r.Register(NewNews())
	return r
}
