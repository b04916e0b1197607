package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalEvent is a versioned booking event, written to the outbox or
// published on the bookings topic.
type CanonicalEvent interface {
	EventType() string
}

// bookingScoped events name the tenant and booking they belong to.
type bookingScoped interface {
	BookingRef() (tenantID, bookingID string)
}

// occurred events carry their own domain timestamp.
type occurred interface {
	OccurredAt() time.Time
}

// Envelope is the wire form of a booking event. Consumers partition on
// CallerID and dedupe on EventID.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	EventType  string          `json:"event_type"`
	CallerID   string          `json:"caller_id"`
	TenantID   string          `json:"tenant_id,omitempty"`
	BookingID  string          `json:"booking_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type EnvelopeOption func(*Envelope)

// WithEventID pins the event id, e.g. to replay an outbox entry under its own id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

var (
	errMissingCaller = errors.New("events: caller id is required")
	errNilEvent      = errors.New("events: booking event required")
	nowFunc          = time.Now
)

// NewEnvelope wraps evt for the caller it concerns. Tenant, booking id and
// timestamp come from the event when it provides them.
func NewEnvelope(callerID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return Envelope{}, errMissingCaller
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, errors.New("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	env := Envelope{
		EventID:    uuid.New(),
		EventType:  eventType,
		CallerID:   callerID,
		OccurredAt: nowFunc().UTC(),
		Payload:    payload,
	}
	if s, ok := evt.(bookingScoped); ok {
		env.TenantID, env.BookingID = s.BookingRef()
	}
	if o, ok := evt.(occurred); ok && !o.OccurredAt().IsZero() {
		env.OccurredAt = o.OccurredAt().UTC()
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env, nil
}
