package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

const defaultPollTimeout = 60

// commandAliases maps bot commands to the keywords the router understands.
var commandAliases = map[string]string{
	"start":    "menu",
	"menu":     "menu",
	"agendar":  "agendar",
	"ajuda":    "menu",
	"cancelar": "cancelar",
}

// Poller long-polls Telegram for updates and enqueues them as inbound messages.
type Poller struct {
	api      botAPI
	enqueuer messaging.Enqueuer
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	timeout  int
}

func NewPoller(api botAPI, enqueuer messaging.Enqueuer, m *metrics.BookingMetrics, logger *logging.Logger) *Poller {
	if api == nil {
		panic("telegram: bot api cannot be nil")
	}
	if enqueuer == nil {
		panic("telegram: enqueuer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{api: api, enqueuer: enqueuer, metrics: m, logger: logger, timeout: defaultPollTimeout}
}

// Run blocks until ctx is cancelled or the update channel closes.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.timeout
	updates := p.api.GetUpdatesChan(u)
	p.logger.Info("telegram poller started")

	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, update)
		}
	}
}

func (p *Poller) handle(ctx context.Context, update tgbotapi.Update) {
	msg, ok := p.toInbound(update)
	if !ok {
		return
	}
	if err := p.enqueuer.Enqueue(ctx, msg); err != nil {
		p.logger.Error("telegram: failed to enqueue inbound message", "chat_id", msg.CallerID, "error", err)
		return
	}
	p.metrics.ObserveInbound(messaging.ChannelTelegram)
}

func (p *Poller) toInbound(update tgbotapi.Update) (messaging.InboundMessage, bool) {
	providerID := strconv.Itoa(update.UpdateID)
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if _, err := p.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			p.logger.Warn("telegram: failed to answer callback", "callback_id", q.ID, "error", err)
		}
		if q.Message == nil || q.Message.Chat == nil || strings.TrimSpace(q.Data) == "" {
			return messaging.InboundMessage{}, false
		}
		return messaging.InboundMessage{
			CallerID:          strconv.FormatInt(q.Message.Chat.ID, 10),
			DisplayName:       displayName(q.From),
			Text:              q.Data,
			Channel:           messaging.ChannelTelegram,
			ReceivedAt:        time.Now().UTC(),
			ProviderMessageID: providerID,
		}, true
	case update.Message != nil:
		m := update.Message
		if m.Chat == nil {
			return messaging.InboundMessage{}, false
		}
		text := m.Text
		if m.IsCommand() {
			alias, ok := commandAliases[strings.ToLower(m.Command())]
			if !ok {
				alias = "menu"
			}
			text = alias
		}
		if strings.TrimSpace(text) == "" {
			return messaging.InboundMessage{}, false
		}
		return messaging.InboundMessage{
			CallerID:          strconv.FormatInt(m.Chat.ID, 10),
			DisplayName:       displayName(m.From),
			Text:              text,
			Channel:           messaging.ChannelTelegram,
			ReceivedAt:        m.Time().UTC(),
			ProviderMessageID: providerID,
		}, true
	default:
		return messaging.InboundMessage{}, false
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}
