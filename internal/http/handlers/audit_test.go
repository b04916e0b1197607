package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

type failingAuditLog struct{}

func (failingAuditLog) LogEvent(context.Context, compliance.AuditEvent) error {
	return errors.New("audit store down")
}

func (failingAuditLog) QueryEvents(context.Context, compliance.AuditFilter) ([]compliance.AuditEvent, error) {
	return nil, errors.New("audit store down")
}

func TestAdminActionsAreAudited(t *testing.T) {
	auditLog := compliance.NewMemoryAuditLog(logging.Discard())

	bookingsH := NewBookingsHandler(&stubLedger{}, logging.Discard()).WithAuditor(auditLog)
	rec, _ := serve(t, http.MethodDelete, "/b/{phone}/{bookingID}", "/b/5511999990001/b-1", "", bookingsH.Cancel)
	require.Equal(t, http.StatusOK, rec.Code)

	sessionsH := NewSessionsHandler(&stubSessions{}, logging.Discard()).WithAuditor(auditLog)
	rec, _ = serve(t, http.MethodDelete, "/s/{phone}", "/s/5511999990001", "", sessionsH.Delete)
	require.Equal(t, http.StatusOK, rec.Code)

	channelH := NewChannelHandler(messaging.NewMemoryTenantDirectory(nil), &stubChannel{}, logging.Discard()).WithAuditor(auditLog)
	rec, _ = serve(t, http.MethodPost, "/send", "/send", `{"phoneNumber":"5511999990001","message":"Olá"}`, channelH.Send)
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := auditLog.QueryEvents(context.Background(), compliance.AuditFilter{CallerID: "5511999990001"})
	require.NoError(t, err)
	require.Len(t, events, 3)

	types := map[compliance.AuditEventType]bool{}
	for _, e := range events {
		types[e.EventType] = true
	}
	assert.True(t, types[compliance.EventBookingCancelled])
	assert.True(t, types[compliance.EventSessionCancelled])
	assert.True(t, types[compliance.EventMessageSent])
}

func TestAuditFailureDoesNotFailRequest(t *testing.T) {
	h := NewSessionsHandler(&stubSessions{}, logging.Discard()).WithAuditor(failingAuditLog{})
	rec, _ := serve(t, http.MethodDelete, "/s/{phone}", "/s/5511999990001", "", h.Delete)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditList(t *testing.T) {
	auditLog := compliance.NewMemoryAuditLog(logging.Discard())
	ctx := context.Background()
	require.NoError(t, auditLog.LogEvent(ctx, compliance.AuditEvent{EventType: compliance.EventCatalogReloaded, TenantID: "t1"}))
	require.NoError(t, auditLog.LogEvent(ctx, compliance.AuditEvent{EventType: compliance.EventCallerRegistered, TenantID: "t2", CallerID: "5511999990001"}))

	h := NewAuditHandler(auditLog, logging.Discard())

	rec, out := serve(t, http.MethodGet, "/audit", "/audit?tenant=t1", "", h.List)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["total"])

	rec, out = serve(t, http.MethodGet, "/audit", "/audit?phone=%2B55+11+99999-0001", "", h.List)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["total"])

	rec, _ = serve(t, http.MethodGet, "/audit", "/audit?limit=0", "", h.List)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, http.MethodGet, "/audit", "/audit?since=yesterday", "", h.List)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failing := NewAuditHandler(failingAuditLog{}, logging.Discard())
	rec, _ = serve(t, http.MethodGet, "/audit", "/audit", "", failing.List)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
