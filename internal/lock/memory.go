package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// Memory is a process-local Locker.
type Memory struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]memoryEntry), now: time.Now}
}

var _ Locker = (*Memory)(nil)

func (m *Memory) TryLock(_ context.Context, key string, ttl time.Duration) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.locks[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}
	token := newToken()
	m.locks[key] = memoryEntry{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e, ok := m.locks[key]; ok && e.token == token {
				delete(m.locks, key)
			}
		})
	}, nil
}

// Purge drops expired entries and returns how many were removed.
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.locks {
		if !now.Before(e.expires) {
			delete(m.locks, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
