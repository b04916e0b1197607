package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Expired sessions are dropped lazily.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	policy   RetentionPolicy
	now      func() time.Time
}

func NewMemoryStore(policy RetentionPolicy) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		policy:   policy,
		now:      time.Now,
	}
}

// SetClock overrides the clock used for expiry. Tests only.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Get(_ context.Context, callerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callerID]
	if !ok {
		return nil, ErrNotFound
	}
	if m.policy.Expired(s, m.now()) {
		delete(m.sessions, callerID)
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.CallerID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, callerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callerID)
	return nil
}

// Sweep removes every expired session and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if m.policy.Expired(s, now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
