// Package messaging defines the chat channel abstraction and the inbound
// message plumbing shared by every channel adapter.
package messaging

import (
	"context"
	"regexp"
	"strings"

	"github.com/wolfman30/agendmed/pkg/logging"
)

// Channel delivers bot replies to a caller.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient, text string) error
	// SendChoices delivers text with selectable options. Adapters that cannot
	// render them fall back to plain text and report it in the outcome.
	SendChoices(ctx context.Context, recipient, text string, options []string) (ChoiceOutcome, error)
}

// ChoiceOutcome reports how a SendChoices call was rendered.
type ChoiceOutcome struct {
	Interactive bool
	// FallbackReason is set when the options were sent as plain text.
	FallbackReason string
}

// ChoicesAsText appends numbered options to the body unless the body already
// lists them.
func ChoicesAsText(text string, options []string) string {
	if len(options) == 0 || strings.Contains(text, ChoiceLabel(options[0])) {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	for _, opt := range options {
		b.WriteString("\n")
		b.WriteString(opt)
	}
	return b.String()
}

var optionIndexRe = regexp.MustCompile(`^(\d+)\.\s*`)

// ChoiceValue returns the text a caller would type to pick an option: the
// leading number of "2. Tarde", or the option itself for "sim".
func ChoiceValue(option string) string {
	if m := optionIndexRe.FindStringSubmatch(option); m != nil {
		return m[1]
	}
	return strings.TrimSpace(option)
}

// ChoiceLabel strips the leading "N. " from an option.
func ChoiceLabel(option string) string {
	return strings.TrimSpace(optionIndexRe.ReplaceAllString(option, ""))
}

// LogChannel writes replies to the log. Used in development and as the
// last-resort fallback.
type LogChannel struct {
	logger *logging.Logger
}

func NewLogChannel(logger *logging.Logger) *LogChannel {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(_ context.Context, recipient, text string) error {
	c.logger.Info("outbound message", "channel", c.Name(), "to", recipient, "body", text)
	return nil
}

func (c *LogChannel) SendChoices(ctx context.Context, recipient, text string, options []string) (ChoiceOutcome, error) {
	if err := c.Send(ctx, recipient, ChoicesAsText(text, options)); err != nil {
		return ChoiceOutcome{}, err
	}
	return ChoiceOutcome{FallbackReason: "log channel renders text only"}, nil
}
