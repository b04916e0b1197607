package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	OutboxEntry
	nextAttempt time.Time
	delivered   bool
	lastError   string
}

// MemoryOutbox is an in-process Outbox for single-node setups without Postgres.
// Entries do not survive a restart.
type MemoryOutbox struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]*memoryEntry
	maxAttempts int
	now         func() time.Time
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{
		entries:     make(map[uuid.UUID]*memoryEntry),
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
}

func (m *MemoryOutbox) Insert(_ context.Context, tenantID string, evt CanonicalEvent) (uuid.UUID, error) {
	if evt == nil {
		return uuid.Nil, errNilEvent
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	now := m.now()
	m.entries[id] = &memoryEntry{
		OutboxEntry: OutboxEntry{ID: id, TenantID: tenantID, Type: evt.EventType(), Payload: data, CreatedAt: now},
		nextAttempt: now,
	}
	return id, nil
}

func (m *MemoryOutbox) FetchPending(_ context.Context, limit int32) ([]OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []OutboxEntry
	for _, e := range m.entries {
		if e.delivered || e.Attempts >= m.maxAttempts || e.nextAttempt.After(now) {
			continue
		}
		out = append(out, e.OutboxEntry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryOutbox) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.delivered {
		return false, nil
	}
	e.delivered = true
	return true, nil
}

func (m *MemoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, cause error, retryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.delivered {
		return nil
	}
	e.Attempts++
	e.nextAttempt = retryAt
	if cause != nil {
		e.lastError = cause.Error()
	}
	return nil
}

// Pending counts undelivered entries.
func (m *MemoryOutbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.delivered {
			n++
		}
	}
	return n
}
