// Package keylock provides per-key mutual exclusion: callers locking the same
// key run one at a time, different keys never block each other.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Map { return &Map{locks: map[string]*entry{}} }

// Lock blocks until key is free and returns the matching unlock func.
func (m *Map) Lock(key string) (unlock func()) {
	unlock, _ = m.LockContext(context.Background(), key)
	return unlock
}

// LockContext is Lock giving up when ctx is done. Entries are dropped once
// nobody holds or waits for them.
func (m *Map) LockContext(ctx context.Context, key string) (unlock func(), err error) {
	e := m.acquire(key)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.release(key, e)
		return nil, err
	}
	return func() {
		e.sem.Release(1)
		m.release(key, e)
	}, nil
}

func (m *Map) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = map[string]*entry{}
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Map) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Len is the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
