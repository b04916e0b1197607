package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wolfman30/agendmed/internal/events"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// MessageHandler processes one dequeued inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg messaging.InboundMessage) error
}

// Worker consumes inbound messages from the queue. Messages are dispatched into
// lanes by caller so each caller's messages are handled one at a time, in
// arrival order, while different callers proceed in parallel.
type Worker struct {
	handler MessageHandler
	queue   Queue
	logger  *logging.Logger

	cfg   workerConfig
	lanes []chan job
	wg    sync.WaitGroup
}

type job struct {
	msg     queueMessage
	payload queuePayload
}

type workerConfig struct {
	lanes            int
	laneBuffer       int
	receiveWaitSecs  int
	receiveBatchSize int
	handleTimeout    time.Duration
	processed        events.Deduper
}

const (
	defaultWorkerCount   = 4
	defaultLaneBuffer    = 16
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultHandleTimeout = 45 * time.Second
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	processedProvider    = "conversation"
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of lanes (concurrent handlers).
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.lanes = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

func WithHandleTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.handleTimeout = d
		}
	}
}

// WithProcessedEventsStore skips queue redeliveries of a message already handled.
func WithProcessedEventsStore(store events.Deduper) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.processed = store
	}
}

func NewWorker(handler MessageHandler, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("conversation: handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		lanes:            defaultWorkerCount,
		laneBuffer:       defaultLaneBuffer,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		handleTimeout:    defaultHandleTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		handler: handler,
		queue:   queue,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the receiver and lane goroutines. When ctx is cancelled the
// receiver stops and lanes drain what was already dispatched.
func (w *Worker) Start(ctx context.Context) {
	w.lanes = make([]chan job, w.cfg.lanes)
	for i := range w.lanes {
		w.lanes[i] = make(chan job, w.cfg.laneBuffer)
		w.wg.Add(1)
		go w.runLane(ctx, i+1, w.lanes[i])
	}
	w.wg.Add(1)
	go w.receive(ctx)
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) receive(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		for _, lane := range w.lanes {
			close(lane)
		}
	}()
	w.logger.Debug("conversation receiver started", "lanes", len(w.lanes))

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation receiver stopping")
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive conversation messages", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			if !w.dispatch(ctx, msg) {
				return
			}
		}
	}
}

// dispatch returns false when ctx was cancelled before the message found a lane.
func (w *Worker) dispatch(ctx context.Context, msg queueMessage) bool {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation message", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.WithoutCancel(ctx), msg.ReceiptHandle)
		return true
	}

	lane := w.lanes[laneFor(payload.Message.CallerID, len(w.lanes))]
	select {
	case lane <- job{msg: msg, payload: payload}:
		return true
	case <-ctx.Done():
		return false
	}
}

// laneFor maps a caller to a stable lane index.
func laneFor(callerID string, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(callerID))
	return int(h.Sum32() % uint32(lanes))
}

func (w *Worker) runLane(ctx context.Context, laneID int, jobs <-chan job) {
	defer w.wg.Done()
	for j := range jobs {
		w.handleMessage(context.WithoutCancel(ctx), laneID, j)
	}
	w.logger.Debug("conversation lane stopped", "lane", laneID)
}

func (w *Worker) handleMessage(ctx context.Context, laneID int, j job) {
	defer w.deleteMessage(ctx, j.msg.ReceiptHandle)

	msg := j.payload.Message
	if w.cfg.processed != nil && j.payload.ID != "" {
		fresh, err := w.cfg.processed.MarkProcessed(ctx, processedProvider, j.payload.ID)
		if err != nil {
			w.logger.Warn("processed check failed, handling anyway", "error", err, "job_id", j.payload.ID)
		} else if !fresh {
			w.logger.Info("skipping redelivered message", "job_id", j.payload.ID, "caller", msg.CallerID)
			return
		}
	}

	w.logger.Debug("worker processing message", "job_id", j.payload.ID, "lane", laneID, "caller", msg.CallerID, "channel", msg.Channel)

	handleCtx, cancel := context.WithTimeout(ctx, w.cfg.handleTimeout)
	defer cancel()
	if err := w.handler.Handle(handleCtx, msg); err != nil {
		w.logger.Error("conversation message failed", "error", err, "job_id", j.payload.ID, "caller", msg.CallerID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation message", "error", err)
	}
}
