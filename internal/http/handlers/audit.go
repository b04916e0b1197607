package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditReader lists recorded audit events.
type AuditReader interface {
	QueryEvents(ctx context.Context, filter compliance.AuditFilter) ([]compliance.AuditEvent, error)
}

type AuditHandler struct {
	reader AuditReader
	logger *logging.Logger
}

func NewAuditHandler(reader AuditReader, logger *logging.Logger) *AuditHandler {
	if reader == nil {
		panic("handlers: audit reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditHandler{reader: reader, logger: logger}
}

// List handles GET /api/audit?tenant=&phone=&type=&since=&until=&limit=&offset=.
// since and until are RFC 3339 timestamps.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := compliance.AuditFilter{
		TenantID:  strings.TrimSpace(q.Get("tenant")),
		EventType: compliance.AuditEventType(strings.TrimSpace(q.Get("type"))),
		Limit:     defaultAuditLimit,
	}
	if phone := q.Get("phone"); phone != "" {
		filter.CallerID = messaging.NormalizePhone(phone)
	}

	var err error
	if filter.StartTime, err = parseTimeParam(q.Get("since")); err != nil {
		jsonError(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}
	if filter.EndTime, err = parseTimeParam(q.Get("until")); err != nil {
		jsonError(w, "until must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = min(n, maxAuditLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonError(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}

	events, err := h.reader.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err)
		jsonError(w, "failed to query audit events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"total":   len(events),
		"events":  events,
	})
}

func parseTimeParam(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
