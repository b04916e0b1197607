package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// TenantRegistrar maps a caller to the tenant whose catalog they book from.
type TenantRegistrar interface {
	Register(ctx context.Context, callerID, tenantID string) error
}

// ChannelHandler hosts the caller registration, direct send and status endpoints.
type ChannelHandler struct {
	tenants TenantRegistrar
	channel messaging.Channel
	auditor Auditor
	logger  *logging.Logger
}

func NewChannelHandler(tenants TenantRegistrar, channel messaging.Channel, logger *logging.Logger) *ChannelHandler {
	if tenants == nil {
		panic("handlers: tenant registrar cannot be nil")
	}
	if channel == nil {
		panic("handlers: channel cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChannelHandler{tenants: tenants, channel: channel, logger: logger}
}

// WithAuditor records registrations and operator sends.
func (h *ChannelHandler) WithAuditor(a Auditor) *ChannelHandler {
	h.auditor = a
	return h
}

type registerUserRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,min=8,max=32"`
	UserID      string `json:"userId" validate:"required,max=128"`
}

// RegisterUser handles POST /api/whatsapp/register-user.
func (h *ChannelHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	caller := messaging.NormalizePhone(req.PhoneNumber)
	if caller == "" {
		jsonError(w, "phoneNumber must contain digits", http.StatusBadRequest)
		return
	}
	if err := h.tenants.Register(r.Context(), caller, strings.TrimSpace(req.UserID)); err != nil {
		h.logger.Error("failed to register caller tenant", "error", err, "caller", caller)
		jsonError(w, "failed to register user", http.StatusInternalServerError)
		return
	}
	h.logger.Info("caller registered", "caller", caller, "tenant_id", req.UserID)
	audit(r, h.auditor, h.logger, compliance.AuditEvent{
		EventType: compliance.EventCallerRegistered,
		TenantID:  strings.TrimSpace(req.UserID),
		CallerID:  caller,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "user registered"})
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,min=1,max=32"`
	Message     string `json:"message" validate:"required,max=4096"`
}

// Send handles POST /api/whatsapp/send, delivering an operator message.
func (h *ChannelHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	recipient := messaging.NormalizePhone(req.PhoneNumber)
	if recipient == "" {
		jsonError(w, "phoneNumber must contain digits", http.StatusBadRequest)
		return
	}
	if err := h.channel.Send(r.Context(), recipient, req.Message); err != nil {
		h.logger.Error("operator send failed", "error", err, "to", recipient, "channel", h.channel.Name())
		jsonError(w, "failed to send message", http.StatusBadGateway)
		return
	}
	audit(r, h.auditor, h.logger, compliance.AuditEvent{
		EventType: compliance.EventMessageSent,
		CallerID:  recipient,
		Details:   compliance.Details(map[string]any{"channel": h.channel.Name(), "length": len(req.Message)}),
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": h.channel.Name()})
}

// Status handles GET /api/whatsapp/status.
func (h *ChannelHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"channel": h.channel.Name(),
		"ready":   true,
	})
}
