package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

var webhookTracer = otel.Tracer("agendmed.internal.messaging.webhook")

const maxWebhookBody = 64 << 10

// webhookPayload is the generic inbound format used by bridges that already
// run their own chat client.
type webhookPayload struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,min=8,max=32"`
	ContactName string `json:"contactName" validate:"max=120"`
	Message     string `json:"message" validate:"required,max=4096"`
	MessageID   string `json:"messageId" validate:"max=128"`
}

// Handler accepts inbound messages over HTTP and enqueues them.
type Handler struct {
	enqueuer Enqueuer
	validate *validator.Validate
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(enqueuer Enqueuer, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	if enqueuer == nil {
		panic("messaging: enqueuer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		enqueuer: enqueuer,
		validate: validator.New(),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// InboundWebhook handles POST /webhooks/messages.
func (h *Handler) InboundWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.webhook.inbound")
	defer span.End()

	var payload webhookPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err := dec.Decode(&payload); err != nil {
		h.logger.Warn("invalid inbound webhook body", "error", err)
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	payload.Message = strings.TrimSpace(payload.Message)
	if err := h.validate.Struct(payload); err != nil {
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
		return
	}
	caller := NormalizePhone(payload.PhoneNumber)
	if caller == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phoneNumber must contain digits"})
		return
	}
	span.SetAttributes(attribute.String("agendmed.caller", caller))

	msg := InboundMessage{
		CallerID:          caller,
		DisplayName:       strings.TrimSpace(payload.ContactName),
		Text:              payload.Message,
		Channel:           ChannelWebhook,
		ReceivedAt:        h.now().UTC(),
		ProviderMessageID: payload.MessageID,
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.enqueuer.Enqueue(enqueueCtx, msg); err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err, "caller", caller)
		span.RecordError(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to schedule reply"})
		return
	}
	h.metrics.ObserveInbound(ChannelWebhook)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return strings.ToLower(fe.Field()[:1]) + fe.Field()[1:] + " failed " + fe.Tag()
	}
	return "invalid payload"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
