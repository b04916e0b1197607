// Package handlers serves the admin and history API around the booking assistant.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/internal/http/middleware"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const maxRequestBody = 64 << 10

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// decodeJSON reads a bounded JSON body into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(lowerFirst(verrs[0].Field()) + " is " + verrs[0].Tag())
		}
		return err
	}
	return nil
}

// phoneParam returns the normalized {phone} URL parameter, or "" if it has no digits.
func phoneParam(r *http.Request) string {
	return messaging.NormalizePhone(chi.URLParam(r, "phone"))
}

// Auditor records actions taken through the API. A nil Auditor disables
// auditing.
type Auditor interface {
	LogEvent(ctx context.Context, event compliance.AuditEvent) error
}

// audit records evt attributed to the authenticated admin. Failures are logged
// and never fail the request.
func audit(r *http.Request, a Auditor, logger *logging.Logger, evt compliance.AuditEvent) {
	if a == nil {
		return
	}
	if evt.Actor == "" {
		evt.Actor = middleware.AdminSubject(r.Context())
	}
	if err := a.LogEvent(r.Context(), evt); err != nil {
		logger.Warn("failed to record audit event", "error", err, "event_type", evt.EventType)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
