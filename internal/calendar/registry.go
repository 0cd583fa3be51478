package calendar

import (
	"sync"

	"pnlcal/internal/store"
)

// Registry keeps one controller per signed-in user.
type Registry struct {
	lister store.EntryLister
	opts   []ControllerOption

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry(lister store.EntryLister, opts ...ControllerOption) *Registry {
	return &Registry{
		lister:      lister,
		opts:        opts,
		controllers: make(map[string]*Controller),
	}
}

// For returns the user's controller, creating it on first use. The second
// result is true when the controller was just created and has no data yet.
func (r *Registry) For(ownerID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[ownerID]; ok {
		return c, false
	}
	c := NewController(ownerID, r.lister, r.opts...)
	r.controllers[ownerID] = c
	return c, true
}

// Drop forgets the user's controller, e.g. on sign-out.
func (r *Registry) Drop(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, ownerID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
