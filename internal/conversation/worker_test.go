package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/agendmed/internal/events"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

type scriptedQueue struct {
	ch       chan queueMessage
	deleted  int
	delMutex sync.Mutex
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{
		ch: make(chan queueMessage, 64),
	}
}

func (s *scriptedQueue) enqueue(t *testing.T, id string, msg messaging.InboundMessage) {
	t.Helper()
	_, body, err := encodePayload(queuePayload{ID: id, Message: msg})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s.ch <- queueMessage{ID: id, Body: body, ReceiptHandle: "rh-" + id}
}

func (s *scriptedQueue) Send(ctx context.Context, body, groupID string) error {
	return nil
}

func (s *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []queueMessage{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(ctx context.Context, receiptHandle string) error {
	s.delMutex.Lock()
	s.deleted++
	s.delMutex.Unlock()
	return nil
}

func (s *scriptedQueue) deletedCount() int {
	s.delMutex.Lock()
	defer s.delMutex.Unlock()
	return s.deleted
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type recordingHandler struct {
	mu      sync.Mutex
	seen    map[string][]string
	total   int
	delay   time.Duration
	fail    bool
	active  map[string]int
	overlap bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: map[string][]string{}, active: map[string]int{}}
}

func (h *recordingHandler) Handle(ctx context.Context, msg messaging.InboundMessage) error {
	h.mu.Lock()
	h.active[msg.CallerID]++
	if h.active[msg.CallerID] > 1 {
		h.overlap = true
	}
	h.mu.Unlock()

	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[msg.CallerID]--
	h.seen[msg.CallerID] = append(h.seen[msg.CallerID], msg.Text)
	h.total++
	if h.fail {
		return errors.New("boom")
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func TestWorkerPreservesPerCallerOrder(t *testing.T) {
	queue := newScriptedQueue()
	handler := newRecordingHandler()
	handler.delay = 2 * time.Millisecond
	worker := NewWorker(handler, queue, logging.Default(), WithWorkerCount(3))

	callers := []string{"5511999990001", "5511999990002", "5511999990003", "5511999990004"}
	const perCaller = 8
	for i := 0; i < perCaller; i++ {
		for _, c := range callers {
			queue.enqueue(t, fmt.Sprintf("%s-%d", c, i), messaging.InboundMessage{CallerID: c, Text: fmt.Sprintf("%d", i)})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	waitFor(func() bool { return handler.count() == perCaller*len(callers) }, 3*time.Second, t)
	cancel()
	worker.Wait()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.overlap {
		t.Fatalf("messages of one caller were handled concurrently")
	}
	for _, c := range callers {
		got := handler.seen[c]
		if len(got) != perCaller {
			t.Fatalf("caller %s: expected %d messages, got %d", c, perCaller, len(got))
		}
		for i, text := range got {
			if text != fmt.Sprintf("%d", i) {
				t.Fatalf("caller %s: out of order at %d: %v", c, i, got)
			}
		}
	}
	if queue.deletedCount() != perCaller*len(callers) {
		t.Fatalf("expected every message deleted, got %d", queue.deletedCount())
	}
}

func TestWorkerDeletesAfterHandlerError(t *testing.T) {
	queue := newScriptedQueue()
	handler := newRecordingHandler()
	handler.fail = true
	worker := NewWorker(handler, queue, logging.Default(), WithWorkerCount(1))

	queue.enqueue(t, "m1", messaging.InboundMessage{CallerID: "1", Text: "oi"})

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()
}

func TestWorkerDropsUndecodableMessage(t *testing.T) {
	queue := newScriptedQueue()
	handler := newRecordingHandler()
	worker := NewWorker(handler, queue, logging.Default())

	queue.ch <- queueMessage{ID: "bad", Body: "{not json", ReceiptHandle: "rh-bad"}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	if handler.count() != 0 {
		t.Fatalf("handler should not see undecodable messages")
	}
}

func TestWorkerSkipsRedeliveredMessage(t *testing.T) {
	queue := newScriptedQueue()
	handler := newRecordingHandler()
	worker := NewWorker(handler, queue, logging.Default(), WithProcessedEventsStore(events.NewMemoryDeduper(time.Hour)))

	msg := messaging.InboundMessage{CallerID: "1", Text: "oi"}
	queue.enqueue(t, "wamid.1", msg)
	queue.enqueue(t, "wamid.1", msg)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	waitFor(func() bool { return queue.deletedCount() == 2 }, time.Second, t)
	cancel()
	worker.Wait()

	if handler.count() != 1 {
		t.Fatalf("expected one handled message, got %d", handler.count())
	}
}

func TestLaneForIsStable(t *testing.T) {
	for _, caller := range []string{"a", "5511999990001", ""} {
		first := laneFor(caller, 7)
		for i := 0; i < 5; i++ {
			if got := laneFor(caller, 7); got != first {
				t.Fatalf("lane changed for %q: %d != %d", caller, got, first)
			}
		}
		if first < 0 || first >= 7 {
			t.Fatalf("lane out of range: %d", first)
		}
	}
	if laneFor("x", 1) != 0 {
		t.Fatalf("single lane must be 0")
	}
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(4)
	pub := NewPublisher(q, logging.Default())
	if err := pub.Enqueue(context.Background(), messaging.InboundMessage{CallerID: "1", Text: "oi", ProviderMessageID: "p1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msgs, err := q.Receive(context.Background(), 5, 1)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ReceiptHandle == "" {
		t.Fatalf("expected receipt handle")
	}
}
