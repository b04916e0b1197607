package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// AttendantHandoff forwards "talk to a human" requests to the attendant's phone
// over the same channel the bot replies on.
type AttendantHandoff struct {
	sender messaging.Channel
	phone  string
	logger *logging.Logger
}

var _ AttendantNotifier = (*AttendantHandoff)(nil)

func NewAttendantHandoff(sender messaging.Channel, attendantPhone string, logger *logging.Logger) *AttendantHandoff {
	if logger == nil {
		logger = logging.Default()
	}
	return &AttendantHandoff{
		sender: sender,
		phone:  strings.TrimSpace(attendantPhone),
		logger: logger,
	}
}

// NotifyAttendant sends the caller's contact details to the attendant. With no
// attendant configured it only logs the request.
func (h *AttendantHandoff) NotifyAttendant(ctx context.Context, msg messaging.InboundMessage) error {
	if h.phone == "" || h.sender == nil {
		h.logger.Warn("attendant handoff: no attendant configured", "caller", msg.CallerID)
		return nil
	}
	if err := h.sender.Send(ctx, h.phone, handoffSummary(msg)); err != nil {
		h.logger.Error("attendant handoff: failed to notify attendant", "error", err, "caller", msg.CallerID, "to", h.phone)
		return fmt.Errorf("conversation: notify attendant: %w", err)
	}
	h.logger.Info("attendant handoff: attendant notified", "caller", msg.CallerID, "to", h.phone)
	return nil
}

func handoffSummary(msg messaging.InboundMessage) string {
	name := strings.TrimSpace(msg.DisplayName)
	if name == "" {
		name = "(sem nome)"
	}
	return fmt.Sprintf("📋 *Solicitação de atendimento*\n\n👤 Cliente: %s\n📞 Contato: %s\n💬 Canal: %s",
		name, msg.CallerID, msg.Channel)
}
