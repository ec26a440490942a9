// Package keyedmutex provides per-key mutual exclusion with FIFO fairness.
//
// It is used to serialize state-changing operations on a single game event:
// at most one operation runs for a given event id at any time, while
// operations on distinct events proceed fully in parallel.
//
// The lock is advisory and in-process only. Cross-process exclusion (e.g.
// two bot instances sharing a database) must come from the storage layer.
package keyedmutex

import "sync"

// Mutex is a process-wide table of per-key locks.
//
// Entries are created on first acquisition and removed again once a key has
// no holder and no waiters, so the table does not grow with the number of
// keys ever seen.
//
// The zero value is not usable; call New.
type Mutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	held bool
	// queue holds one wake-up channel per waiter, in arrival order.
	// Unlock hands the lock to queue[0], so acquisition is FIFO per key.
	queue []chan struct{}
}

func New() *Mutex {
	return &Mutex{entries: make(map[string]*entry)}
}

// Lock blocks until the caller holds the lock for key.
func (m *Mutex) Lock(key string) {
	m.mu.Lock()
	e := m.entries[key]
	if e == nil {
		m.entries[key] = &entry{held: true}
		m.mu.Unlock()
		return
	}
	if !e.held {
		e.held = true
		m.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	e.queue = append(e.queue, ch)
	m.mu.Unlock()
	<-ch
}

// Unlock releases the lock for key and wakes the oldest waiter, if any.
// Unlocking a key that is not held panics, like sync.Mutex.
func (m *Mutex) Unlock(key string) {
	m.mu.Lock()
	e := m.entries[key]
	if e == nil || !e.held {
		m.mu.Unlock()
		panic("keyedmutex: unlock of unlocked key " + key)
	}
	if len(e.queue) > 0 {
		// Hand over directly: held stays true, ownership moves to the
		// oldest waiter without a release window another goroutine
		// could steal (which would break FIFO ordering).
		ch := e.queue[0]
		e.queue = e.queue[1:]
		m.mu.Unlock()
		close(ch)
		return
	}
	delete(m.entries, key)
	m.mu.Unlock()
}

// WithLock runs fn while holding the lock for key.
// The lock is released even if fn returns an error or panics, so one failed
// operation never starves subsequent ones.
func (m *Mutex) WithLock(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}

// Len reports the number of keys with a current holder or waiters.
// Intended for tests and diagnostics.
func (m *Mutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
