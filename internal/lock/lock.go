// Package lock serializes mutations of a single ticket. Locks are keyed by ticket id so
// unrelated tickets never wait on each other.
package lock

import (
	"context"
	"sync"
)

// Release frees a held lock. Calling it more than once is a no-op.
type Release func()

// Locker acquires an exclusive lock for key, blocking until it is free or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex builds an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Acquire implements Locker.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (Release, error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.unref(key, s)
		})
	}, nil
}

func (m *KeyedMutex) unref(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// size reports how many keys currently have holders or waiters.
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
