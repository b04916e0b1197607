// Package telegram adapts the Telegram Bot API to messaging.Channel and polls
// it for inbound messages.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// maxKeyboardButtons keeps inline keyboards readable on phones; longer
// option lists go out as numbered text.
const maxKeyboardButtons = 12

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBotAPI connects to Telegram with the bot token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return api, nil
}

// Channel sends replies to Telegram chats. Recipients are chat ids.
type Channel struct {
	api     botAPI
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

var _ messaging.Channel = (*Channel)(nil)

func NewChannel(api botAPI, m *metrics.BookingMetrics, logger *logging.Logger) *Channel {
	if api == nil {
		panic("telegram: bot api cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Channel{api: api, metrics: m, logger: logger}
}

func (c *Channel) Name() string { return messaging.ChannelTelegram }

func (c *Channel) Send(_ context.Context, recipient, text string) error {
	chatID, err := parseChatID(recipient)
	if err != nil {
		return err
	}
	_, err = c.api.Send(tgbotapi.NewMessage(chatID, text))
	c.metrics.ObserveOutbound(c.Name(), err)
	if err != nil {
		c.logger.Error("telegram: failed to send message", "chat_id", chatID, "error", err)
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// SendChoices attaches an inline keyboard, one button per row. Button data is
// the value a caller would type, so taps and typed answers are handled alike.
func (c *Channel) SendChoices(ctx context.Context, recipient, text string, options []string) (messaging.ChoiceOutcome, error) {
	if len(options) == 0 || len(options) > maxKeyboardButtons {
		if err := c.Send(ctx, recipient, messaging.ChoicesAsText(text, options)); err != nil {
			return messaging.ChoiceOutcome{}, err
		}
		return messaging.ChoiceOutcome{FallbackReason: fmt.Sprintf("%d options not rendered as keyboard", len(options))}, nil
	}
	chatID, err := parseChatID(recipient)
	if err != nil {
		return messaging.ChoiceOutcome{}, err
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt, messaging.ChoiceValue(opt)),
		))
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	_, err = c.api.Send(msg)
	c.metrics.ObserveOutbound(c.Name(), err)
	if err == nil {
		return messaging.ChoiceOutcome{Interactive: true}, nil
	}
	c.logger.Warn("telegram: keyboard send failed; falling back to text", "chat_id", chatID, "error", err)
	if err := c.Send(ctx, recipient, messaging.ChoicesAsText(text, options)); err != nil {
		return messaging.ChoiceOutcome{}, err
	}
	return messaging.ChoiceOutcome{FallbackReason: "keyboard send failed"}, nil
}

func parseChatID(recipient string) (int64, error) {
	id, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q", recipient)
	}
	return id, nil
}
