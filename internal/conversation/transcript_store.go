package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/agendmed/internal/messaging"
)

const (
	transcriptKeyPrefix   = "transcript:"
	transcriptIndexKey    = "transcript_index"
	transcriptTTL         = 30 * 24 * time.Hour
	defaultMaxTranscripts = 250
)

// ConversationSummary describes one caller's history for listings.
type ConversationSummary struct {
	PhoneNumber   string    `json:"phoneNumber"`
	ContactName   string    `json:"contactName"`
	MessageCount  int64     `json:"messageCount"`
	LastMessage   string    `json:"lastMessage"`
	LastTimestamp time.Time `json:"lastTimestamp"`
}

// TranscriptStore keeps per-caller conversation history.
type TranscriptStore interface {
	messaging.Recorder
	List(ctx context.Context, callerID string, limit int64) ([]messaging.TranscriptMessage, error)
	Delete(ctx context.Context, callerID string) error
	Conversations(ctx context.Context) ([]ConversationSummary, error)
}

// RedisTranscriptStore stores each caller's history as a capped Redis list,
// with a sorted set of callers by last activity.
type RedisTranscriptStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	maxMessages int64
}

var _ TranscriptStore = (*RedisTranscriptStore)(nil)

func NewRedisTranscriptStore(redisClient *redis.Client) *RedisTranscriptStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisTranscriptStore{
		redis:       redisClient,
		tracer:      otel.Tracer("agendmed.internal.conversation.transcript"),
		maxMessages: defaultMaxTranscripts,
	}
}

func (s *RedisTranscriptStore) Append(ctx context.Context, callerID string, msg messaging.TranscriptMessage) error {
	if callerID == "" {
		return errors.New("conversation: transcript callerID required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation: marshal transcript message: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "conversation.transcript.append")
	defer span.End()

	key := transcriptKey(callerID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, transcriptTTL)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	pipe.ZAdd(ctx, transcriptIndexKey, redis.Z{Score: float64(msg.Timestamp.UnixMilli()), Member: callerID})
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append transcript message: %w", err)
	}
	return nil
}

func (s *RedisTranscriptStore) List(ctx context.Context, callerID string, limit int64) ([]messaging.TranscriptMessage, error) {
	if callerID == "" {
		return nil, errors.New("conversation: transcript callerID required")
	}

	ctx, span := s.tracer.Start(ctx, "conversation.transcript.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(callerID), start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []messaging.TranscriptMessage{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: list transcript: %w", err)
	}

	out := make([]messaging.TranscriptMessage, 0, len(raw))
	for _, item := range raw {
		var msg messaging.TranscriptMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisTranscriptStore) Delete(ctx context.Context, callerID string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, transcriptKey(callerID))
	pipe.ZRem(ctx, transcriptIndexKey, callerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation: delete transcript: %w", err)
	}
	return nil
}

// Conversations lists callers, most recent activity first. Callers whose
// history expired are dropped from the index.
func (s *RedisTranscriptStore) Conversations(ctx context.Context) ([]ConversationSummary, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.transcript.conversations")
	defer span.End()

	callers, err := s.redis.ZRevRange(ctx, transcriptIndexKey, 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: list conversations: %w", err)
	}
	out := make([]ConversationSummary, 0, len(callers))
	for _, caller := range callers {
		key := transcriptKey(caller)
		count, err := s.redis.LLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("conversation: count transcript: %w", err)
		}
		if count == 0 {
			s.redis.ZRem(ctx, transcriptIndexKey, caller)
			continue
		}
		msgs, err := s.List(ctx, caller, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(caller, msgs, count))
	}
	return out, nil
}

func transcriptKey(callerID string) string {
	return transcriptKeyPrefix + callerID
}

// summarize uses the most recent contact name the caller sent.
func summarize(caller string, msgs []messaging.TranscriptMessage, count int64) ConversationSummary {
	sum := ConversationSummary{PhoneNumber: caller, ContactName: caller, MessageCount: count}
	if len(msgs) == 0 {
		return sum
	}
	last := msgs[len(msgs)-1]
	sum.LastMessage = last.Content
	sum.LastTimestamp = last.Timestamp
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ContactName != "" {
			sum.ContactName = msgs[i].ContactName
			break
		}
	}
	return sum
}

// MemoryTranscriptStore keeps history in process.
type MemoryTranscriptStore struct {
	mu          sync.RWMutex
	history     map[string][]messaging.TranscriptMessage
	maxMessages int
}

var _ TranscriptStore = (*MemoryTranscriptStore)(nil)

func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{
		history:     make(map[string][]messaging.TranscriptMessage),
		maxMessages: defaultMaxTranscripts,
	}
}

func (s *MemoryTranscriptStore) Append(_ context.Context, callerID string, msg messaging.TranscriptMessage) error {
	if callerID == "" {
		return errors.New("conversation: transcript callerID required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.history[callerID], msg)
	if len(msgs) > s.maxMessages {
		msgs = msgs[len(msgs)-s.maxMessages:]
	}
	s.history[callerID] = msgs
	return nil
}

func (s *MemoryTranscriptStore) List(_ context.Context, callerID string, limit int64) ([]messaging.TranscriptMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.history[callerID]
	if limit > 0 && int64(len(msgs)) > limit {
		msgs = msgs[int64(len(msgs))-limit:]
	}
	return append([]messaging.TranscriptMessage{}, msgs...), nil
}

func (s *MemoryTranscriptStore) Delete(_ context.Context, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, callerID)
	return nil
}

func (s *MemoryTranscriptStore) Conversations(_ context.Context) ([]ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConversationSummary, 0, len(s.history))
	for caller, msgs := range s.history {
		out = append(out, summarize(caller, msgs, int64(len(msgs))))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTimestamp.After(out[j].LastTimestamp) })
	return out, nil
}
