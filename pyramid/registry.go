package pyramid

import (
	"slices"
	"sync"
)

// Registry counts live pyramids. Pass one to constructors with
// WithRegistry; pyramids leave it when freed.
type Registry struct {
	mu    sync.Mutex
	live  map[string]Kind
	total int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]Kind)}
}

func (r *Registry) add(id string, k Kind) {
	r.mu.Lock()
	r.live[id] = k
	r.total++
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}

// Count returns the number of live pyramids.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Total returns the number of pyramids ever registered.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Live returns the ids of live pyramids in sorted order.
func (r *Registry) Live() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}
