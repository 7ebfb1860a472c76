package surface

import (
	"errors"
	"fmt"
	"sync"
)

// Registry tracks the surfaces that are currently open. Membership is owned
// by the surface lifecycle (session manager); readers query it synchronously.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]Surface
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{surfaces: make(map[string]Surface)}
}

// Add registers s. Adding an id twice keeps the original position.
func (r *Registry) Add(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.surfaces[s.ID()]; !ok {
		r.order = append(r.order, s.ID())
	}
	r.surfaces[s.ID()] = s
}

// Remove unregisters the surface with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.surfaces[id]; !ok {
		return
	}
	delete(r.surfaces, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the surface with id.
func (r *Registry) Get(id string) (Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[id]
	return s, ok
}

// List returns open surfaces in registration order.
func (r *Registry) List() []Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Surface, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.surfaces[id])
	}
	return out
}

// IDs returns open surface ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of open surfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Broadcast sends msg to every open surface once and returns how many sends
// succeeded along with the joined failures.
func (r *Registry) Broadcast(msg Message) (int, error) {
	var errs []error
	sent := 0
	for _, s := range r.List() {
		if err := s.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("surface %s: %w", s.ID(), err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
