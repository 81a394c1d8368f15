package scroll

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Registry holds the one scroll target currently able to execute gestures.
//
// Dispatch holds the read lock for the whole call into the target, while
// Connect and Disconnect take the write lock. A disconnect therefore either
// waits for in-flight dispatches against the old target or is observed
// before a dispatch begins.
type Registry struct {
	mu      sync.RWMutex
	current Target
	id      uuid.UUID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Connect makes t the current target, replacing any previous one, and
// returns the attachment id to pass to Disconnect.
func (r *Registry) Connect(t Target) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	replaced := r.current != nil
	r.current = t
	r.id = id
	r.mu.Unlock()

	if replaced {
		log.Printf("Scroll: Target %s connected, replacing previous target", id)
	} else {
		log.Printf("Scroll: Target %s connected", id)
	}
	return id
}

// Disconnect clears the current target if id still identifies it.
// A stale id is ignored so a late disconnect cannot remove a newer target.
func (r *Registry) Disconnect(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.id != id {
		return false
	}
	r.current = nil
	r.id = uuid.Nil
	log.Printf("Scroll: Target %s disconnected", id)
	return true
}

// Connected reports whether a target is attached
func (r *Registry) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current != nil
}

// Dispatch performs d on the current target. It returns false without error
// when no target is connected.
func (r *Registry) Dispatch(d Direction) (bool, error) {
	if d != Up && d != Down {
		return false, ErrNoDirection
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.current == nil {
		return false, nil
	}
	if err := r.current.PerformScroll(d); err != nil {
		return false, err
	}
	return true, nil
}
