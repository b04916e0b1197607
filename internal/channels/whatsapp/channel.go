// Package whatsapp adapts the WhatsApp Cloud API to messaging.Channel and
// turns its webhooks into inbound messages.
package whatsapp

import (
	"context"
	"fmt"

	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// Cloud API limits for interactive list messages.
const (
	maxListRows        = 10
	maxRowTitle        = 24
	maxRowDescription  = 72
	maxInteractiveBody = 1024
	listButtonLabel    = "Ver opções"
)

// Channel delivers replies through the Cloud API.
type Channel struct {
	client  *Client
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

var _ messaging.Channel = (*Channel)(nil)

func NewChannel(client *Client, m *metrics.BookingMetrics, logger *logging.Logger) *Channel {
	if client == nil {
		panic("whatsapp: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Channel{client: client, metrics: m, logger: logger}
}

func (c *Channel) Name() string { return messaging.ChannelWhatsApp }

func (c *Channel) Send(ctx context.Context, recipient, text string) error {
	_, err := c.client.SendText(ctx, messaging.NormalizePhone(recipient), text)
	c.metrics.ObserveOutbound(c.Name(), err)
	if err != nil {
		c.logger.Error("whatsapp: failed to send message", "to", recipient, "error", err)
	}
	return err
}

// SendChoices sends an interactive list whose row ids are the values a caller
// would type, so a tap arrives as the same text as a typed answer. Lists the
// API cannot render, and failed list sends, fall back to plain text.
func (c *Channel) SendChoices(ctx context.Context, recipient, text string, options []string) (messaging.ChoiceOutcome, error) {
	reason := ""
	switch {
	case len(options) == 0:
		reason = "no options"
	case len(options) > maxListRows:
		reason = fmt.Sprintf("%d options exceed list limit", len(options))
	case len([]rune(text)) > maxInteractiveBody:
		reason = "body exceeds interactive limit"
	}
	if reason == "" {
		_, err := c.client.SendList(ctx, messaging.NormalizePhone(recipient), text, listButtonLabel, listRows(options))
		c.metrics.ObserveOutbound(c.Name(), err)
		if err == nil {
			return messaging.ChoiceOutcome{Interactive: true}, nil
		}
		c.logger.Warn("whatsapp: list send failed; falling back to text", "to", recipient, "error", err)
		reason = "interactive send failed"
	}
	if err := c.Send(ctx, recipient, messaging.ChoicesAsText(text, options)); err != nil {
		return messaging.ChoiceOutcome{}, err
	}
	return messaging.ChoiceOutcome{FallbackReason: reason}, nil
}

func listRows(options []string) []Row {
	rows := make([]Row, 0, len(options))
	for _, opt := range options {
		label := messaging.ChoiceLabel(opt)
		row := Row{ID: messaging.ChoiceValue(opt), Title: truncate(label, maxRowTitle)}
		if row.Title != label {
			row.Description = truncate(label, maxRowDescription)
		}
		rows = append(rows, row)
	}
	return rows
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
