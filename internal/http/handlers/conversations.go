package handlers

import (
	"net/http"
	"strconv"

	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/internal/conversation"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const defaultHistoryLimit = 100

// ConversationsHandler exposes caller transcripts.
type ConversationsHandler struct {
	store   conversation.TranscriptStore
	auditor Auditor
	logger  *logging.Logger
}

func NewConversationsHandler(store conversation.TranscriptStore, logger *logging.Logger) *ConversationsHandler {
	if store == nil {
		panic("handlers: transcript store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationsHandler{store: store, logger: logger}
}

// WithAuditor records transcript deletions.
func (h *ConversationsHandler) WithAuditor(a Auditor) *ConversationsHandler {
	h.auditor = a
	return h
}

// List handles GET /api/whatsapp/conversations.
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.Conversations(r.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		jsonError(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"total":         len(convs),
		"conversations": convs,
	})
}

// Get handles GET /api/whatsapp/conversation/{phone}?limit=N.
func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	if phone == "" {
		jsonError(w, "invalid phone number", http.StatusBadRequest)
		return
	}
	limit := int64(defaultHistoryLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	msgs, err := h.store.List(r.Context(), phone, limit)
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "caller", phone)
		jsonError(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"phoneNumber":  phone,
		"conversation": msgs,
	})
}

// Delete handles DELETE /api/whatsapp/conversation/{phone}.
func (h *ConversationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	if phone == "" {
		jsonError(w, "invalid phone number", http.StatusBadRequest)
		return
	}
	if err := h.store.Delete(r.Context(), phone); err != nil {
		h.logger.Error("failed to delete conversation", "error", err, "caller", phone)
		jsonError(w, "failed to delete conversation", http.StatusInternalServerError)
		return
	}
	audit(r, h.auditor, h.logger, compliance.AuditEvent{
		EventType: compliance.EventTranscriptDeleted,
		CallerID:  phone,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "conversation deleted"})
}
