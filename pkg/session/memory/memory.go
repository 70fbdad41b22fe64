// Package memory provides an in-process implementation of session.Store.
// Histories are lost when the process restarts. An optional session cap
// evicts the least recently used conversation. Sessions held by Lock are
// never evicted or swept, so the cap may be exceeded while every session
// is locked.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/observability"
	"github.com/knikam3027/jnj/pkg/session"
)

// entry holds one session's transcript and bookkeeping.
type entry struct {
	turns    []api.Turn
	lastUsed time.Time
	lruElem  *list.Element // position in LRU list
}

// Store is an in-memory session.Store with optional LRU eviction.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	lruList     *list.List // front = most recently used
	maxSessions int        // 0 = unlimited
	locks       *session.KeyedMutex
	closed      bool

	now func() time.Time
}

// Ensure Store implements session.Store at compile time.
var _ session.Store = (*Store)(nil)

// New creates an in-memory store. If maxSessions is 0 the store grows without
// limit; otherwise the least recently used session is evicted at the limit.
func New(maxSessions int) *Store {
	return &Store{
		entries:     make(map[string]*entry),
		lruList:     list.New(),
		maxSessions: maxSessions,
		locks:       session.NewKeyedMutex(),
		now:         time.Now,
	}
}

// Get returns a copy of the session's turns.
func (s *Store) Get(_ context.Context, key string) ([]api.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, session.ErrClosed
	}

	e, ok := s.entries[key]
	if !ok {
		return []api.Turn{}, nil
	}
	s.touch(e)

	out := make([]api.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

// Clear drops the session's turns. The session slot itself is released.
func (s *Store) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return session.ErrClosed
	}

	if e, ok := s.entries[key]; ok {
		s.lruList.Remove(e.lruElem)
		delete(s.entries, key)
		observability.SessionsActive.Set(float64(len(s.entries)))
	}
	return nil
}

// Append adds turns to the end of the session.
func (s *Store) Append(_ context.Context, key string, turns ...api.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return session.ErrClosed
	}

	e, ok := s.entries[key]
	if !ok {
		if s.maxSessions > 0 && len(s.entries) >= s.maxSessions {
			s.evictOldest()
		}
		e = &entry{lruElem: s.lruList.PushFront(key)}
		s.entries[key] = e
		observability.SessionsActive.Set(float64(len(s.entries)))
	}
	e.turns = append(e.turns, turns...)
	s.touch(e)
	return nil
}

// Lock serializes access to one session in arrival order.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	return s.locks.Lock(ctx, key)
}

// Sweep removes sessions idle for longer than idleFor and returns how many
// were removed. Locked sessions are kept.
func (s *Store) Sweep(idleFor time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idleFor)
	removed := 0
	for elem := s.lruList.Back(); elem != nil; {
		key := elem.Value.(string)
		e := s.entries[key]
		if e.lastUsed.After(cutoff) {
			break
		}
		prev := elem.Prev()
		if !s.locks.Held(key) {
			s.lruList.Remove(elem)
			delete(s.entries, key)
			removed++
		}
		elem = prev
	}
	if removed > 0 {
		observability.SessionsActive.Set(float64(len(s.entries)))
	}
	return removed
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// HealthCheck always succeeds for an open store.
func (s *Store) HealthCheck(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return session.ErrClosed
	}
	return nil
}

// Close discards every session.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = make(map[string]*entry)
	s.lruList.Init()
	observability.SessionsActive.Set(0)
	return nil
}

func (s *Store) touch(e *entry) {
	e.lastUsed = s.now()
	s.lruList.MoveToFront(e.lruElem)
}

// evictOldest removes the least recently used unlocked session. Must be
// called with mu held.
func (s *Store) evictOldest() {
	for elem := s.lruList.Back(); elem != nil; elem = elem.Prev() {
		key := elem.Value.(string)
		if s.locks.Held(key) {
			continue
		}
		s.lruList.Remove(elem)
		delete(s.entries, key)
		return
	}
}
