package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/agendmed/internal/booking"
	"github.com/wolfman30/agendmed/internal/catalog"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/internal/session"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// BookingMachine is the booking conversation the router delegates to.
type BookingMachine interface {
	Begin(ctx context.Context, callerID, displayName, tenantID string) (booking.Outcome, error)
	Advance(ctx context.Context, callerID, rawText string) (booking.Outcome, error)
	Peek(ctx context.Context, callerID string) (*session.Session, bool, error)
	Cancel(ctx context.Context, callerID string) error
}

// ServiceLister returns a tenant's services for the information menu option.
type ServiceLister interface {
	Get(ctx context.Context, tenantID string) ([]catalog.ServiceOffering, error)
}

// HoursSource returns a tenant's configured HH:MM hours.
type HoursSource interface {
	TenantHours(ctx context.Context, tenantID string) ([]string, error)
}

// AttendantNotifier is told when a caller asks for a human.
type AttendantNotifier interface {
	NotifyAttendant(ctx context.Context, msg messaging.InboundMessage) error
}

type intent int

const (
	intentUnknown intent = iota
	intentGreeting
	intentBook
	intentHours
	intentServices
	intentAttendant
	intentCancel
)

var greetings = map[string]struct{}{
	"olá": {}, "ola": {}, "oi": {}, "opa": {}, "e aí": {}, "e ai": {}, "menu": {},
}

// classify maps free text to a menu option. Order matters: "agendar consulta"
// is a booking request even though it also mentions other keywords.
func classify(text string) intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if _, ok := greetings[t]; ok {
		return intentGreeting
	}
	switch {
	case t == "cancelar":
		return intentCancel
	case t == "1" || strings.Contains(t, "agendar") || strings.Contains(t, "agendamento") || strings.Contains(t, "consulta"):
		return intentBook
	case t == "2" || strings.Contains(t, "horários") || strings.Contains(t, "horarios") || strings.Contains(t, "disponível"):
		return intentHours
	case t == "3" || strings.Contains(t, "serviços") || strings.Contains(t, "servicos") || strings.Contains(t, "informações"):
		return intentServices
	case t == "4" || strings.Contains(t, "atendente") || strings.Contains(t, "falar"):
		return intentAttendant
	}
	return intentUnknown
}

// Router turns one inbound message into a reply. Messages from a caller with an
// active booking go to the booking machine; everything else is matched against
// the menu.
type Router struct {
	machine    BookingMachine
	channel    messaging.Channel
	tenants    messaging.TenantResolver
	services   ServiceLister
	hours      HoursSource
	attendant  AttendantNotifier
	transcript messaging.Recorder
	logger     *logging.Logger
}

// RouterOption customizes optional router collaborators.
type RouterOption func(*Router)

func WithServiceLister(s ServiceLister) RouterOption {
	return func(r *Router) { r.services = s }
}

func WithHoursSource(h HoursSource) RouterOption {
	return func(r *Router) { r.hours = h }
}

func WithAttendantNotifier(n AttendantNotifier) RouterOption {
	return func(r *Router) { r.attendant = n }
}

// WithTranscript records caller messages. Bot replies are recorded by the channel.
func WithTranscript(rec messaging.Recorder) RouterOption {
	return func(r *Router) { r.transcript = rec }
}

func NewRouter(machine BookingMachine, channel messaging.Channel, tenants messaging.TenantResolver, logger *logging.Logger, opts ...RouterOption) *Router {
	if machine == nil {
		panic("conversation: booking machine cannot be nil")
	}
	if channel == nil {
		panic("conversation: channel cannot be nil")
	}
	if tenants == nil {
		panic("conversation: tenant resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Router{
		machine: machine,
		channel: channel,
		tenants: tenants,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound message and sends the reply. A returned error
// means the caller got the generic apology instead of a real answer.
func (r *Router) Handle(ctx context.Context, msg messaging.InboundMessage) error {
	caller := msg.CallerID
	if strings.TrimSpace(caller) == "" {
		return errors.New("conversation: inbound message without caller")
	}
	r.recordInbound(ctx, msg)

	out, err := r.route(ctx, msg)
	if err != nil {
		r.logger.Error("failed to process message", "error", err, "caller", caller, "channel", msg.Channel)
		if sendErr := r.channel.Send(ctx, caller, replyProcessingError); sendErr != nil {
			r.logger.Error("failed to send apology", "error", sendErr, "caller", caller)
		}
		return err
	}
	if out.Reply == "" {
		return nil
	}
	return r.reply(ctx, caller, out)
}

func (r *Router) route(ctx context.Context, msg messaging.InboundMessage) (booking.Outcome, error) {
	s, ok, err := r.machine.Peek(ctx, msg.CallerID)
	if err != nil {
		return booking.Outcome{}, fmt.Errorf("conversation: peek session: %w", err)
	}
	kind := classify(msg.Text)

	if ok && s.Active() {
		if kind == intentCancel {
			if err := r.machine.Cancel(ctx, msg.CallerID); err != nil {
				return booking.Outcome{}, fmt.Errorf("conversation: cancel booking: %w", err)
			}
			return booking.Outcome{Reply: replyCancelled}, nil
		}
		out, err := r.machine.Advance(ctx, msg.CallerID, msg.Text)
		if err != nil {
			return booking.Outcome{}, fmt.Errorf("conversation: advance booking: %w", err)
		}
		if out.Completed {
			r.logger.Info("booking completed", "caller", msg.CallerID, "state", out.State)
		}
		return out, nil
	}

	switch kind {
	case intentGreeting:
		return booking.Outcome{Reply: greeting(msg.DisplayName), Choices: menuChoices}, nil
	case intentCancel:
		return booking.Outcome{Reply: replyNothingToCancel}, nil
	case intentBook:
		tenant, ok, err := r.tenant(ctx, msg.CallerID)
		if err != nil {
			return booking.Outcome{}, err
		}
		if !ok {
			return booking.Outcome{Reply: replyNoTenant}, nil
		}
		out, err := r.machine.Begin(ctx, msg.CallerID, msg.DisplayName, tenant)
		if err != nil {
			return booking.Outcome{}, fmt.Errorf("conversation: begin booking: %w", err)
		}
		return out, nil
	case intentHours:
		return booking.Outcome{Reply: r.hoursReply(ctx, msg.CallerID)}, nil
	case intentServices:
		return booking.Outcome{Reply: r.servicesReply(ctx, msg.CallerID)}, nil
	case intentAttendant:
		if r.attendant != nil {
			if err := r.attendant.NotifyAttendant(ctx, msg); err != nil {
				r.logger.Warn("attendant notification failed", "error", err, "caller", msg.CallerID)
			}
		}
		return booking.Outcome{Reply: replyAttendant}, nil
	}
	return booking.Outcome{Reply: replyUnknown, Choices: menuChoices}, nil
}

// tenant reports ok=false when the caller has no tenant and no default is set.
func (r *Router) tenant(ctx context.Context, callerID string) (string, bool, error) {
	tenant, err := r.tenants.ResolveTenant(ctx, callerID)
	if errors.Is(err, messaging.ErrTenantNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("conversation: resolve tenant: %w", err)
	}
	return tenant, true, nil
}

func (r *Router) hoursReply(ctx context.Context, callerID string) string {
	if r.hours == nil {
		return replyDefaultHours
	}
	tenant, ok, err := r.tenant(ctx, callerID)
	if err != nil || !ok {
		return replyDefaultHours
	}
	times, err := r.hours.TenantHours(ctx, tenant)
	if err != nil {
		r.logger.Warn("tenant hours unavailable, using default hours", "error", err, "tenant_id", tenant)
		return replyDefaultHours
	}
	if len(times) == 0 {
		return replyDefaultHours
	}
	return hoursReply(times)
}

func (r *Router) servicesReply(ctx context.Context, callerID string) string {
	if r.services == nil {
		return replyServicesUnavailable
	}
	tenant, ok, err := r.tenant(ctx, callerID)
	if err != nil {
		r.logger.Warn("tenant lookup failed", "error", err, "caller", callerID)
		return replyServicesUnavailable
	}
	if !ok {
		return replyNoTenant
	}
	services, err := r.services.Get(ctx, tenant)
	if err != nil {
		r.logger.Warn("services unavailable", "error", err, "tenant_id", tenant)
		return replyServicesUnavailable
	}
	if len(services) == 0 {
		return replyNoServices
	}
	return servicesReply(services)
}

func (r *Router) reply(ctx context.Context, caller string, out booking.Outcome) error {
	if len(out.Choices) == 0 {
		if err := r.channel.Send(ctx, caller, out.Reply); err != nil {
			return fmt.Errorf("conversation: send reply: %w", err)
		}
		return nil
	}
	res, err := r.channel.SendChoices(ctx, caller, out.Reply, out.Choices)
	if err != nil {
		return fmt.Errorf("conversation: send choices: %w", err)
	}
	if !res.Interactive && res.FallbackReason != "" {
		r.logger.Debug("choices sent as text", "caller", caller, "reason", res.FallbackReason)
	}
	return nil
}

func (r *Router) recordInbound(ctx context.Context, msg messaging.InboundMessage) {
	if r.transcript == nil {
		return
	}
	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	err := r.transcript.Append(ctx, messaging.NormalizePhone(msg.CallerID), messaging.TranscriptMessage{
		Role:        messaging.RoleUser,
		Content:     msg.Text,
		ContactName: msg.DisplayName,
		Timestamp:   ts,
	})
	if err != nil {
		r.logger.Warn("failed to record inbound message", "error", err, "caller", msg.CallerID)
	}
}
