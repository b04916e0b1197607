package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agendmed/internal/events"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "551130000000", "phone_number_id": "PHONE_ID"},
        "contacts": [{"wa_id": "5511999990000", "profile": {"name": "Ana"}}],
        "messages": [
          {"from": "5511999990000", "id": "wamid.1", "timestamp": "1893456000", "type": "text", "text": {"body": "agendar"}},
          {"from": "5511999990000", "id": "wamid.2", "timestamp": "1893456005", "type": "interactive",
           "interactive": {"type": "list_reply", "list_reply": {"id": "2", "title": "Restauração"}}},
          {"from": "5511999990000", "id": "wamid.3", "timestamp": "1893456010", "type": "image"}
        ]
      }
    }]
  }]
}`

type captureEnqueuer struct {
	mu   sync.Mutex
	msgs []messaging.InboundMessage
	err  error
}

func (c *captureEnqueuer) Enqueue(_ context.Context, msg messaging.InboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	validSig := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("my_verify_token", "secret", &captureEnqueuer{}, nil, nil, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123", nil)
	w := httptest.NewRecorder()
	h.HandleVerification(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CHALLENGE_123", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X", nil)
	w = httptest.NewRecorder()
	h.HandleVerification(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestParseWebhookEvent(t *testing.T) {
	var event WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(samplePayload), &event))

	msgs := ParseWebhookEvent(event)
	require.Len(t, msgs, 2)
	assert.Equal(t, "agendar", msgs[0].Text)
	assert.Equal(t, "Ana", msgs[0].ContactName)
	assert.Equal(t, time.Unix(1893456000, 0).UTC(), msgs[0].Timestamp)
	assert.False(t, msgs[0].Interactive)
	assert.Equal(t, "2", msgs[1].Text)
	assert.True(t, msgs[1].Interactive)
}

func postInbound(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)
	return w
}

func TestHandleInboundEnqueuesAndDedupes(t *testing.T) {
	enq := &captureEnqueuer{}
	h := NewWebhookHandler("", "secret", enq, events.NewMemoryDeduper(time.Hour), nil, logging.Discard())
	body := []byte(samplePayload)

	w := postInbound(h, body, sign("secret", body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, enq.msgs, 2)
	assert.Equal(t, messaging.InboundMessage{
		CallerID:          "5511999990000",
		DisplayName:       "Ana",
		Text:              "agendar",
		Channel:           messaging.ChannelWhatsApp,
		ReceivedAt:        time.Unix(1893456000, 0).UTC(),
		ProviderMessageID: "wamid.1",
	}, enq.msgs[0])

	w = postInbound(h, body, sign("secret", body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, enq.msgs, 2, "redelivery must not enqueue again")
}

func TestHandleInboundRejectsBadSignature(t *testing.T) {
	enq := &captureEnqueuer{}
	h := NewWebhookHandler("", "secret", enq, nil, nil, logging.Discard())
	w := postInbound(h, []byte(samplePayload), sign("other", []byte(samplePayload)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, enq.msgs)
}

func TestHandleInboundReleasesDedupeOnEnqueueFailure(t *testing.T) {
	enq := &captureEnqueuer{err: errors.New("queue down")}
	deduper := events.NewMemoryDeduper(time.Hour)
	h := NewWebhookHandler("", "", enq, deduper, nil, logging.Discard())

	w := postInbound(h, []byte(samplePayload), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	enq.err = nil
	w = postInbound(h, []byte(samplePayload), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, enq.msgs, 2)
}
