package session

import (
	"fmt"
	"sync"
)

// entry holds one session and its lock. A nil session means the entry is
// reserved while Start generates items. An evicted entry was dropped from
// the registry by the sweeper; holders must look the session up again.
type entry struct {
	mu        sync.Mutex
	s         *Session
	finalized bool
	evicted   bool
}

// registry is the set of sessions not yet finalized. The registry lock
// guards only the map; session state is guarded by the entry lock, so
// different sessions never block each other.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	limit   int
}

func newRegistry(limit int) *registry {
	return &registry{entries: make(map[string]*entry), limit: limit}
}

// reserve adds an entry for id, failing when the registry is full.
func (r *registry) reserve(id string, e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.entries) >= r.limit {
		return fmt.Errorf("%w: %d of %d slots in use", ErrSessionLimitExceeded, len(r.entries), r.limit)
	}
	r.entries[id] = e
	return nil
}

// adopt registers e unless id is already present, in which case the
// existing entry is returned. The limit does not apply to restored sessions.
func (r *registry) adopt(id string, e *entry) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[id]; ok {
		return existing
	}
	r.entries[id] = e
	return e
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// snapshot returns the current entries without holding the registry lock
// while the caller works on them.
func (r *registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
