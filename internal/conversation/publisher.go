package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// Publisher enqueues inbound messages for the conversation worker.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

var _ messaging.Enqueuer = (*Publisher)(nil)

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// Enqueue publishes one inbound message, grouped by caller.
func (p *Publisher) Enqueue(ctx context.Context, msg messaging.InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(queuePayload{ID: msg.ProviderMessageID, Message: msg})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body, msg.CallerID); err != nil {
		return fmt.Errorf("conversation: failed to enqueue message: %w", err)
	}

	p.logger.Debug("inbound message enqueued", "job_id", payload.ID, "caller", msg.CallerID, "channel", msg.Channel)
	return nil
}
