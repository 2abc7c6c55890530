package provider

import (
	"fmt"

	"github.com/kalambet/aether/internal/query"
)

// Registry holds the adapters configured at startup. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	defaultID ID
	available []Descriptor
	adapters  map[ID]Adapter
}

// NewRegistry builds a registry from the given adapters. The default
// provider must be among them. Available order follows the registry table
// regardless of argument order.
func NewRegistry(defaultID ID, adapters ...Adapter) (*Registry, error) {
	byID := make(map[ID]Adapter, len(adapters))
	for _, a := range adapters {
		if _, ok := Lookup(a.ID()); !ok {
			return nil, fmt.Errorf("unknown provider %q", a.ID())
		}
		byID[a.ID()] = a
	}
	if _, ok := byID[defaultID]; !ok {
		return nil, fmt.Errorf("default provider %q: %w", defaultID, ErrUnavailable)
	}

	r := &Registry{defaultID: defaultID, adapters: byID}
	for _, d := range Descriptors() {
		if _, ok := byID[d.ID]; ok {
			r.available = append(r.available, d)
		}
	}
	return r, nil
}

// Default returns the always-available fallback provider.
func (r *Registry) Default() ID { return r.defaultID }

// Available returns the configured providers in registry order.
func (r *Registry) Available() []ID {
	ids := make([]ID, len(r.available))
	for i, d := range r.available {
		ids[i] = d.ID
	}
	return ids
}

// Select returns the available provider with the highest score for qt.
// Ties go to the provider listed first; when nothing scores above zero the
// default provider is returned.
func (r *Registry) Select(qt query.Type) ID {
	best, bestScore := r.defaultID, 0
	for _, d := range r.available {
		if s := d.Score(qt); s > bestScore {
			best, bestScore = d.ID, s
		}
	}
	return best
}

// Adapter returns the adapter for id, or ErrUnavailable.
func (r *Registry) Adapter(id ID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnavailable)
	}
	return a, nil
}
