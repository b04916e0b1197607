package messaging

import (
	"context"
	"time"
)

// Channel names carried on InboundMessage.Channel.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// InboundMessage is a caller message normalized from any channel.
type InboundMessage struct {
	CallerID          string    `json:"caller_id"`
	DisplayName       string    `json:"display_name,omitempty"`
	Text              string    `json:"text"`
	Channel           string    `json:"channel"`
	ReceivedAt        time.Time `json:"received_at"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
}

// Enqueuer accepts inbound messages for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg InboundMessage) error
}

// Transcript roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// TranscriptMessage is one line of a caller's conversation history.
type TranscriptMessage struct {
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	ContactName string    `json:"contactName,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Recorder appends messages to a caller's conversation history.
type Recorder interface {
	Append(ctx context.Context, callerID string, msg TranscriptMessage) error
}
