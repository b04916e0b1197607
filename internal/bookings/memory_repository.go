package bookings

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-process ledger used when DATABASE_URL is unset.
type MemoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]ConfirmedBooking
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[string]ConfirmedBooking)}
}

func (m *MemoryRepository) Create(_ context.Context, b ConfirmedBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryRepository) SetRemoteID(_ context.Context, id, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.RemoteID = remoteID
	if b.Status != StatusCancelled {
		b.Status = StatusSaved
	}
	m.bookings[id] = b
	return nil
}

func (m *MemoryRepository) SetStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	m.bookings[id] = b
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (ConfirmedBooking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return ConfirmedBooking{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryRepository) ListByCaller(_ context.Context, callerID string) ([]ConfirmedBooking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []ConfirmedBooking{}
	for _, b := range m.bookings {
		if b.CallerID == callerID && b.Status != StatusCancelled {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Cancel(_ context.Context, callerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.CallerID != callerID || b.Status == StatusCancelled {
		return ErrNotFound
	}
	b.Status = StatusCancelled
	m.bookings[id] = b
	return nil
}
