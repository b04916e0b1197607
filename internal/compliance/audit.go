// Package compliance keeps the audit trail of actions taken on patient data
// through the admin API.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/agendmed/pkg/logging"
)

// AuditEventType represents the type of audited action.
type AuditEventType string

const (
	// EventCallerRegistered is logged when a caller is mapped to a tenant.
	EventCallerRegistered AuditEventType = "caller.registered"
	// EventMessageSent is logged when an operator sends a message directly.
	EventMessageSent AuditEventType = "admin.message_sent"
	// EventTranscriptDeleted is logged when a caller's history is erased.
	EventTranscriptDeleted AuditEventType = "admin.transcript_deleted"
	// EventBookingCancelled is logged when an operator cancels a booking.
	EventBookingCancelled AuditEventType = "admin.booking_cancelled"
	// EventSessionCancelled is logged when an operator drops an open session.
	EventSessionCancelled AuditEventType = "admin.session_cancelled"
	// EventCatalogReloaded is logged when a tenant's catalog is refreshed.
	EventCatalogReloaded AuditEventType = "admin.catalog_reloaded"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	TenantID  string          `json:"tenant_id,omitempty"`
	CallerID  string          `json:"caller_id,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	TenantID  string
	CallerID  string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// AuditLog records and lists audit events.
type AuditLog interface {
	LogEvent(ctx context.Context, event AuditEvent) error
	QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditService stores audit events in Postgres.
type AuditService struct {
	db *sql.DB
}

var _ AuditLog = (*AuditService)(nil)

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	if db == nil {
		panic("compliance: db required")
	}
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	event = withDefaults(event)

	query := `
		INSERT INTO audit_events (
			id, event_type, tenant_id, caller_id, actor, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		nullString(event.TenantID),
		nullString(event.CallerID),
		nullString(event.Actor),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// QueryEvents retrieves audit events with filters, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, tenant_id, caller_id, actor, details, created_at
		FROM audit_events
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1
	add := func(clause string, value any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, value)
		argIdx++
	}

	if filter.TenantID != "" {
		add(" AND tenant_id = $%d", filter.TenantID)
	}
	if filter.CallerID != "" {
		add(" AND caller_id = $%d", filter.CallerID)
	}
	if filter.EventType != "" {
		add(" AND event_type = $%d", string(filter.EventType))
	}
	if !filter.StartTime.IsZero() {
		add(" AND created_at >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add(" AND created_at <= $%d", filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var (
			e                         AuditEvent
			eventType                 string
			tenantID, callerID, actor sql.NullString
			details                   []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &tenantID, &callerID, &actor, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.EventType = AuditEventType(eventType)
		e.TenantID = tenantID.String
		e.CallerID = callerID.String
		e.Actor = actor.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MemoryAuditLog keeps audit events in process and mirrors them to the log.
type MemoryAuditLog struct {
	mu     sync.RWMutex
	events []AuditEvent
	logger *logging.Logger
}

var _ AuditLog = (*MemoryAuditLog)(nil)

func NewMemoryAuditLog(logger *logging.Logger) *MemoryAuditLog {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryAuditLog{logger: logger}
}

func (m *MemoryAuditLog) LogEvent(_ context.Context, event AuditEvent) error {
	event = withDefaults(event)
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.logger.Info("audit event",
		"event_type", event.EventType,
		"tenant_id", event.TenantID,
		"caller", event.CallerID,
		"actor", event.Actor,
	)
	return nil
}

func (m *MemoryAuditLog) QueryEvents(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []AuditEvent{}
	for _, e := range m.events {
		if filter.TenantID != "" && e.TenantID != filter.TenantID {
			continue
		}
		if filter.CallerID != "" && e.CallerID != filter.CallerID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if !filter.StartTime.IsZero() && e.CreatedAt.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.CreatedAt.After(filter.EndTime) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []AuditEvent{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Details marshals v for AuditEvent.Details; nil on failure.
func Details(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func withDefaults(event AuditEvent) AuditEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return event
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
