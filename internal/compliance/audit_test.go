package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agendmed/pkg/logging"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	tests := []struct {
		name    string
		event   AuditEvent
		execErr error
		wantErr bool
	}{
		{
			name: "booking cancelled",
			event: AuditEvent{
				EventType: EventBookingCancelled,
				TenantID:  "tenant-1",
				CallerID:  "5511999990000",
				Actor:     "ops@agendmed",
				Details:   Details(map[string]string{"booking_id": "b-1"}),
			},
		},
		{
			name: "transcript deleted without actor",
			event: AuditEvent{
				EventType: EventTranscriptDeleted,
				CallerID:  "5511999990000",
			},
		},
		{
			name:    "database failure",
			event:   AuditEvent{EventType: EventCatalogReloaded, TenantID: "tenant-1"},
			execErr: errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := mock.ExpectExec("INSERT INTO audit_events")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(1, 1))
			}

			err := service.LogEvent(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "tenant_id", "caller_id", "actor", "details", "created_at",
	}).AddRow(
		uuid.NewString(), string(EventSessionCancelled), "tenant-1", "5511999990000", nil,
		[]byte(`{}`), now,
	)

	mock.ExpectQuery("SELECT (.+) FROM audit_events").
		WithArgs("tenant-1", string(EventSessionCancelled)).
		WillReturnRows(rows)

	events, err := service.QueryEvents(context.Background(), AuditFilter{
		TenantID:  "tenant-1",
		EventType: EventSessionCancelled,
		Limit:     100,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSessionCancelled, events[0].EventType)
	assert.Empty(t, events[0].Actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryAuditLogFiltersNewestFirst(t *testing.T) {
	log := NewMemoryAuditLog(logging.Discard())
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.LogEvent(ctx, AuditEvent{EventType: EventCallerRegistered, TenantID: "t1", CreatedAt: base}))
	require.NoError(t, log.LogEvent(ctx, AuditEvent{EventType: EventBookingCancelled, TenantID: "t1", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, log.LogEvent(ctx, AuditEvent{EventType: EventBookingCancelled, TenantID: "t2", CreatedAt: base.Add(2 * time.Minute)}))

	events, err := log.QueryEvents(ctx, AuditFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventBookingCancelled, events[0].EventType)
	assert.NotEmpty(t, events[0].ID)

	events, err = log.QueryEvents(ctx, AuditFilter{EventType: EventBookingCancelled, Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "t2", events[0].TenantID)

	events, err = log.QueryEvents(ctx, AuditFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, events)
}
