package bootstrap

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wolfman30/agendmed/internal/channels/telegram"
	"github.com/wolfman30/agendmed/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/agendmed/internal/config"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/internal/observability/metrics"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// OutboundChannel is the provider selected by CHANNEL. TelegramAPI is set
// only for the telegram channel so the caller can start the inbound poller.
type OutboundChannel struct {
	Channel     messaging.Channel
	TelegramAPI *tgbotapi.BotAPI
}

// BuildOutboundChannel selects the reply channel. Outside production, provider
// failures fall back to the log channel so local runs still show the replies.
func BuildOutboundChannel(cfg *appconfig.Config, m *metrics.BookingMetrics, logger *logging.Logger) (OutboundChannel, error) {
	if cfg == nil {
		return OutboundChannel{}, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	logChannel := messaging.NewLogChannel(logger)
	var out OutboundChannel
	switch cfg.Channel {
	case "", "log":
		out.Channel = logChannel
		logger.Info("outbound channel: log")
		return out, nil
	case "whatsapp":
		client := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID)
		out.Channel = whatsapp.NewChannel(client, m, logger)
	case "telegram":
		api, err := telegram.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return OutboundChannel{}, err
		}
		out.TelegramAPI = api
		out.Channel = telegram.NewChannel(api, m, logger)
	default:
		return OutboundChannel{}, fmt.Errorf("bootstrap: unknown channel %q", cfg.Channel)
	}

	if !cfg.IsProduction() {
		out.Channel = messaging.NewFailoverChannel(out.Channel, logChannel, logger)
	}
	logger.Info("outbound channel configured", "channel", out.Channel.Name())
	return out, nil
}
