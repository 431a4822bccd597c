package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured adapters, keyed by name, plus the default.
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]Provider
	defaultName string
}

func NewRegistry(defaultName string) *Registry {
	return &Registry{byName: make(map[string]Provider), defaultName: defaultName}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.byName[p.Name()] = p
	r.mu.Unlock()
}

// Get resolves a provider by name; empty name means the default.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Names lists registered providers in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveFallback returns the native provider for a turn whose needs the
// requested provider does not declare. Doc generation and attachment
// reading run on the native tool loop; subprocess and sidecar adapters
// never receive our tool set. The bool reports whether a switch happened.
// Without a registered native provider the request stays where it is.
func (r *Registry) ResolveFallback(requested Provider) (Provider, bool) {
	r.mu.RLock()
	native, ok := r.byName["native"]
	r.mu.RUnlock()
	if !ok || native.Name() == requested.Name() {
		return requested, false
	}
	return native, true
}
