package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/agendmed/pkg/logging"
)

// FailoverChannel attempts a primary send, then falls back to a secondary channel on error.
type FailoverChannel struct {
	primary   Channel
	secondary Channel
	logger    *logging.Logger
}

func NewFailoverChannel(primary, secondary Channel, logger *logging.Logger) *FailoverChannel {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverChannel{primary: primary, secondary: secondary, logger: logger}
}

var _ Channel = (*FailoverChannel)(nil)

func (f *FailoverChannel) Name() string {
	if f == nil || f.primary == nil {
		return "failover"
	}
	return f.primary.Name()
}

// Send tries the primary channel first, then the secondary one.
func (f *FailoverChannel) Send(ctx context.Context, recipient, text string) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary channel not configured")
	}
	err := f.primary.Send(ctx, recipient, text)
	if err == nil || f.secondary == nil {
		return err
	}
	f.logger.Warn("primary send failed; attempting fallback",
		"channel", f.primary.Name(),
		"fallback", f.secondary.Name(),
		"error", err,
		"to", recipient,
	)
	if fallbackErr := f.secondary.Send(ctx, recipient, text); fallbackErr != nil {
		f.logger.Error("fallback send failed", "channel", f.secondary.Name(), "error", fallbackErr, "to", recipient)
		return fallbackErr
	}
	return nil
}

func (f *FailoverChannel) SendChoices(ctx context.Context, recipient, text string, options []string) (ChoiceOutcome, error) {
	if f == nil || f.primary == nil {
		return ChoiceOutcome{}, errors.New("messaging: failover primary channel not configured")
	}
	out, err := f.primary.SendChoices(ctx, recipient, text, options)
	if err == nil || f.secondary == nil {
		return out, err
	}
	f.logger.Warn("primary choice send failed; attempting fallback",
		"channel", f.primary.Name(),
		"fallback", f.secondary.Name(),
		"error", err,
		"to", recipient,
	)
	return f.secondary.SendChoices(ctx, recipient, text, options)
}
