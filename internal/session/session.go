// Package session stores the per-caller booking conversation state.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/agendmed/internal/availability"
	"github.com/wolfman30/agendmed/internal/catalog"
)

// ErrNotFound is returned when the caller has no stored session.
var ErrNotFound = errors.New("session: not found")

// State is the question the caller is currently answering.
type State string

const (
	StateAskingService State = "asking_service"
	StateAskingPeriod  State = "asking_period"
	StateAskingDate    State = "asking_date"
	StateAskingTime    State = "asking_time"
	StateConfirming    State = "confirming"
	StateCompleted     State = "completed"
)

// Session is one caller's booking in progress (or its terminal record).
type Session struct {
	CallerID    string `json:"caller_id"`
	DisplayName string `json:"display_name"`
	TenantID    string `json:"tenant_id"`
	State       State  `json:"state"`

	// Services is the catalog snapshot the caller was shown at the start.
	Services       []catalog.ServiceOffering `json:"services"`
	Service        *catalog.ServiceOffering  `json:"service,omitempty"`
	Period         *availability.Period      `json:"period,omitempty"`
	Date           *string                   `json:"date,omitempty"`
	Time           *string                   `json:"time,omitempty"`
	AvailableSlots []string                  `json:"available_slots,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	BookingID   string     `json:"booking_id,omitempty"`
}

// Active reports whether the session still expects input.
func (s *Session) Active() bool {
	return s != nil && s.State != StateCompleted
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Services = append([]catalog.ServiceOffering(nil), s.Services...)
	if s.Service != nil {
		svc := *s.Service
		out.Service = &svc
	}
	if s.Period != nil {
		p := *s.Period
		out.Period = &p
	}
	if s.Date != nil {
		d := *s.Date
		out.Date = &d
	}
	if s.Time != nil {
		t := *s.Time
		out.Time = &t
	}
	if s.AvailableSlots != nil {
		out.AvailableSlots = append([]string(nil), s.AvailableSlots...)
	}
	if s.CompletedAt != nil {
		c := *s.CompletedAt
		out.CompletedAt = &c
	}
	return &out
}

// Store persists sessions keyed by caller id.
type Store interface {
	Get(ctx context.Context, callerID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, callerID string) error
}

// RetentionPolicy decides how long a stored session lives.
type RetentionPolicy struct {
	// IdleTTL expires in-progress sessions after this long without input.
	IdleTTL time.Duration
	// CompletedRetention keeps completed sessions as a terminal record.
	CompletedRetention time.Duration
}

// DefaultRetention is 2h idle and 24h for completed sessions.
var DefaultRetention = RetentionPolicy{
	IdleTTL:            2 * time.Hour,
	CompletedRetention: 24 * time.Hour,
}

// TTL returns the lifetime of s measured from its last update. Zero means no expiry.
func (p RetentionPolicy) TTL(s *Session) time.Duration {
	if s.State == StateCompleted {
		return p.CompletedRetention
	}
	return p.IdleTTL
}

// Expired reports whether s has outlived its TTL at now.
func (p RetentionPolicy) Expired(s *Session, now time.Time) bool {
	ttl := p.TTL(s)
	if ttl <= 0 {
		return false
	}
	return !now.Before(s.UpdatedAt.Add(ttl))
}
