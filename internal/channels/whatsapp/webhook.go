package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/agendmed/internal/events"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles Meta webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	enqueuer    messaging.Enqueuer
	deduper     events.Deduper
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewWebhookHandler creates a webhook handler. Signatures are only checked
// when appSecret is set; deduper may be nil.
func NewWebhookHandler(verifyToken, appSecret string, enqueuer messaging.Enqueuer, deduper events.Deduper, m *metrics.BookingMetrics, logger *logging.Logger) *WebhookHandler {
	if enqueuer == nil {
		panic("whatsapp: enqueuer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if appSecret == "" {
		logger.Warn("whatsapp: app secret not configured; webhook signatures are not verified")
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		enqueuer:    enqueuer,
		deduper:     deduper,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook events.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("whatsapp: invalid webhook signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for _, msg := range ParseWebhookEvent(event) {
		if h.deduper != nil && msg.MessageID != "" {
			fresh, err := h.deduper.MarkProcessed(ctx, messaging.ChannelWhatsApp, msg.MessageID)
			if err != nil {
				h.logger.Warn("whatsapp: dedupe check failed", "message_id", msg.MessageID, "error", err)
			} else if !fresh {
				h.logger.Debug("whatsapp: duplicate delivery ignored", "message_id", msg.MessageID)
				continue
			}
		}
		receivedAt := msg.Timestamp
		if receivedAt.IsZero() {
			receivedAt = h.now().UTC()
		}
		inbound := messaging.InboundMessage{
			CallerID:          messaging.NormalizePhone(msg.From),
			DisplayName:       msg.ContactName,
			Text:              msg.Text,
			Channel:           messaging.ChannelWhatsApp,
			ReceivedAt:        receivedAt,
			ProviderMessageID: msg.MessageID,
		}
		if err := h.enqueuer.Enqueue(ctx, inbound); err != nil {
			if h.deduper != nil && msg.MessageID != "" {
				if relErr := h.deduper.Release(ctx, messaging.ChannelWhatsApp, msg.MessageID); relErr != nil {
					h.logger.Warn("whatsapp: failed to release dedupe marker", "message_id", msg.MessageID, "error", relErr)
				}
			}
			h.logger.Error("whatsapp: failed to enqueue inbound message", "message_id", msg.MessageID, "error", err)
			http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
			return
		}
		h.metrics.ObserveInbound(messaging.ChannelWhatsApp)
	}
	w.WriteHeader(http.StatusOK)
}

// ParseWebhookEvent extracts text and interactive replies from a webhook event.
// Media, reactions and status callbacks are skipped.
func ParseWebhookEvent(event WebhookEvent) []ParsedInboundMessage {
	var messages []ParsedInboundMessage
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				parsed := ParsedInboundMessage{
					From:        m.From,
					ContactName: names[m.From],
					MessageID:   m.ID,
					Timestamp:   parseUnixSeconds(m.Timestamp),
				}
				switch {
				case m.Type == "text" && m.Text != nil:
					parsed.Text = m.Text.Body
				case m.Type == "interactive" && m.Interactive != nil:
					parsed.Interactive = true
					if m.Interactive.ListReply != nil {
						parsed.Text = m.Interactive.ListReply.ID
					} else if m.Interactive.ButtonReply != nil {
						parsed.Text = m.Interactive.ButtonReply.ID
					}
				case m.Type == "button" && m.Button != nil:
					parsed.Interactive = true
					parsed.Text = m.Button.Payload
					if parsed.Text == "" {
						parsed.Text = m.Button.Text
					}
				}
				if strings.TrimSpace(parsed.Text) == "" || parsed.From == "" {
					continue
				}
				messages = append(messages, parsed)
			}
		}
	}
	return messages
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
