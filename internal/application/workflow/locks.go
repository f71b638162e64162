package workflow

import "sync"

// instanceLocks serializes operations per instance id.
// Entries are reference counted and dropped when the last holder unlocks.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[int64]*refMutex)}
}

// Lock blocks until id is free and returns the matching unlock func
func (l *instanceLocks) Lock(id int64) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()

	return func() {
		m.mu.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *instanceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
