// Package presence tracks which identities currently hold live
// connections. It is the only shared mutable structure outside the store,
// so every operation here takes the registry lock.
package presence

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dkoval/wirechat/internal/model"
)

// Handle is a live connection able to receive events. Enqueue must not
// block; it reports false when the connection's buffer is full and the
// event was dropped.
type Handle interface {
	IdentityID() uuid.UUID
	Enqueue(ev model.Event) bool
}

// Registry maps identity ids to their live handles. One identity may hold
// several connections at once (multi-device); a second connect adds a
// delivery target, it never replaces the first.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[Handle]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]map[Handle]struct{}),
	}
}

// Register adds a live handle for its identity.
func (r *Registry) Register(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := h.IdentityID()
	if _, ok := r.sessions[id]; !ok {
		r.sessions[id] = make(map[Handle]struct{})
	}
	r.sessions[id][h] = struct{}{}
}

// Unregister removes exactly the matching handle. Calling it twice for the
// same handle is a no-op.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := h.IdentityID()
	handles, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(handles, h)
	if len(handles) == 0 {
		delete(r.sessions, id)
	}
}

// Resolve returns the live handles for one identity. An unknown identity
// yields an empty slice, not an error.
func (r *Registry) Resolve(identityID uuid.UUID) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.sessions[identityID]
	out := make([]Handle, 0, len(handles))
	for h := range handles {
		out = append(out, h)
	}
	return out
}

// ResolveAll returns every live handle, for broadcast delivery.
func (r *Registry) ResolveAll() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handle
	for _, handles := range r.sessions {
		for h := range handles {
			out = append(out, h)
		}
	}
	return out
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, handles := range r.sessions {
		n += len(handles)
	}
	return n
}
