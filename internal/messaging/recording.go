package messaging

import (
	"context"
	"time"

	"github.com/wolfman30/agendmed/pkg/logging"
)

// RecordingChannel wraps a Channel and appends every outbound message to the
// caller's transcript before sending it.
type RecordingChannel struct {
	inner    Channel
	recorder Recorder
	logger   *logging.Logger
	now      func() time.Time
}

// WrapWithRecorder returns ch unchanged when recorder is nil.
func WrapWithRecorder(ch Channel, recorder Recorder, logger *logging.Logger) Channel {
	if recorder == nil {
		return ch
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RecordingChannel{inner: ch, recorder: recorder, logger: logger, now: time.Now}
}

func (r *RecordingChannel) Name() string { return r.inner.Name() }

func (r *RecordingChannel) Send(ctx context.Context, recipient, text string) error {
	r.record(ctx, recipient, text)
	return r.inner.Send(ctx, recipient, text)
}

func (r *RecordingChannel) SendChoices(ctx context.Context, recipient, text string, options []string) (ChoiceOutcome, error) {
	r.record(ctx, recipient, ChoicesAsText(text, options))
	return r.inner.SendChoices(ctx, recipient, text, options)
}

func (r *RecordingChannel) record(ctx context.Context, recipient, text string) {
	msg := TranscriptMessage{Role: RoleBot, Content: text, Timestamp: r.now().UTC()}
	// History is best effort; delivery matters more.
	if err := r.recorder.Append(ctx, NormalizePhone(recipient), msg); err != nil {
		r.logger.Warn("failed to record outbound message", "error", err, "to", recipient)
	}
}
