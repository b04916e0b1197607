package handlers

import (
	"context"
	"net/http"

	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/internal/session"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// SessionInspector reads and discards in-flight booking sessions.
type SessionInspector interface {
	Peek(ctx context.Context, callerID string) (*session.Session, bool, error)
	Cancel(ctx context.Context, callerID string) error
}

type SessionsHandler struct {
	sessions SessionInspector
	auditor  Auditor
	logger   *logging.Logger
}

func NewSessionsHandler(sessions SessionInspector, logger *logging.Logger) *SessionsHandler {
	if sessions == nil {
		panic("handlers: session inspector cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionsHandler{sessions: sessions, logger: logger}
}

// WithAuditor records operator cancellations.
func (h *SessionsHandler) WithAuditor(a Auditor) *SessionsHandler {
	h.auditor = a
	return h
}

// Get handles GET /api/sessions/{phone}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	if phone == "" {
		jsonError(w, "invalid phone number", http.StatusBadRequest)
		return
	}
	s, ok, err := h.sessions.Peek(r.Context(), phone)
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "caller", phone)
		jsonError(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"active":  s.Active(),
		"session": s,
	})
}

// Delete handles DELETE /api/sessions/{phone}.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	if phone == "" {
		jsonError(w, "invalid phone number", http.StatusBadRequest)
		return
	}
	if err := h.sessions.Cancel(r.Context(), phone); err != nil {
		h.logger.Error("failed to cancel session", "error", err, "caller", phone)
		jsonError(w, "failed to cancel session", http.StatusInternalServerError)
		return
	}
	h.logger.Info("session cancelled by operator", "caller", phone)
	audit(r, h.auditor, h.logger, compliance.AuditEvent{
		EventType: compliance.EventSessionCancelled,
		CallerID:  phone,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "session cancelled"})
}
