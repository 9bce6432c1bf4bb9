package fetch

import "sync"

// LockRegistry is the in-process layer of the two-layer fetch guard. It keeps
// one mutex per company so goroutines in the same process never even reach
// the persisted lock when a fetch is already running locally.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// TryAcquire attempts the company's mutex without blocking.
func (r *LockRegistry) TryAcquire(companyID string) bool {
	r.mu.Lock()
	m, ok := r.locks[companyID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[companyID] = m
	}
	r.mu.Unlock()
	return m.TryLock()
}

// Release unlocks the company's mutex. Must only be called after a
// successful TryAcquire.
func (r *LockRegistry) Release(companyID string) {
	r.mu.Lock()
	m, ok := r.locks[companyID]
	r.mu.Unlock()
	if ok {
		m.Unlock()
	}
}
