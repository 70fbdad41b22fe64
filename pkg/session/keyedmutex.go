package session

import (
	"context"
	"sync"
)

// KeyedMutex provides mutual exclusion per key. Unlike sync.Mutex, waiters
// on one key acquire it strictly in the order they called Lock.
// Entries are dropped once a key has no holder and no waiters.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	held    bool
	waiters []chan struct{}
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until the key is acquired or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	if !l.held {
		l.held = true
		m.mu.Unlock()
		return m.unlockFunc(key), nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return m.unlockFunc(key), nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				m.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		m.mu.Unlock()
		// Ownership was handed over while ctx fired; pass it on.
		m.release(key)
		return nil, ctx.Err()
	}
}

// Len returns the number of keys currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Held reports whether key is currently held or awaited.
func (m *KeyedMutex) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[key]
	return ok
}

func (m *KeyedMutex) unlockFunc(key string) func() {
	var once sync.Once
	return func() { once.Do(func() { m.release(key) }) }
}

func (m *KeyedMutex) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		return
	}
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return
	}
	delete(m.locks, key)
}
