package gmpe

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps model ids, as stored in the gmpe_id column, to models.
type Registry struct {
	mu     sync.RWMutex
	models map[int]Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[int]Model)}
}

// DefaultRegistry returns a registry holding the built-in models.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewGlobalWaRup())
	r.Register(NewGlobalWaHyp())
	r.Register(NewCentralAsiaEmca())
	return r
}

// Register adds m, replacing any model with the same id.
func (r *Registry) Register(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID()] = m
}

// Get returns the model with the given id.
func (r *Registry) Get(id int) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("unknown gmpe id %d", id)
	}
	return m, nil
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// List returns the registered models ordered by id.
func (r *Registry) List() []Model {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Model, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.models[id])
	}
	return out
}
