package cancel

import "sync"

// Registry tracks cancellation requests by request identifier.
//
// A request registers its id when it starts and polls the registry on every
// progress tick. Id 0 means "not cancellable" and is never stored. All
// operations hold a single mutex for O(1) time; the lock is never held
// across I/O.
type Registry struct {
	mu      sync.Mutex
	pending map[int32]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[int32]bool)}
}

// Register inserts id with no cancellation requested. No-op for id 0.
// Re-registering an id resets its flag.
func (r *Registry) Register(id int32) {
	if id == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = false
}

// RequestCancel marks id as cancelled if it is registered. Unknown or
// already-finished ids are silently ignored.
func (r *Registry) RequestCancel(id int32) {
	if id == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; ok {
		r.pending[id] = true
	}
}

// CheckAndClear reports whether cancellation was requested for id and, if
// so, removes the entry. Called from the progress-check path only.
func (r *Registry) CheckAndClear(id int32) bool {
	if id == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[id] {
		delete(r.pending, id)
		return true
	}
	return false
}

// Clear removes the entry for id unconditionally. Called on every request
// termination; clearing an absent id is a no-op, so repeated termination
// signals are safe.
func (r *Registry) Clear(id int32) {
	if id == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
