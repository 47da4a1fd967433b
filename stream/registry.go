package stream

import (
	"sort"
	"sync"
)

// Registry tracks which contract IDs the caller has subscribed to. The
// exchange does not persist subscription state across connections, so the
// Manager replays Snapshot() after every successful (re)connect.
type Registry struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[int64]struct{})}
}

// Add records a subscription. Idempotent; reports whether the contract was
// newly added.
func (r *Registry) Add(contractID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[contractID]; ok {
		return false
	}
	r.ids[contractID] = struct{}{}
	return true
}

// Remove drops a subscription. Reports whether the contract was present.
func (r *Registry) Remove(contractID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[contractID]; !ok {
		return false
	}
	delete(r.ids, contractID)
	return true
}

// Contains reports whether the contract is subscribed.
func (r *Registry) Contains(contractID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[contractID]
	return ok
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Snapshot returns the current subscription set, sorted for deterministic
// replay.
func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
