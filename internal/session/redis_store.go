package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "booking_session:"

// RedisStore keeps sessions in Redis with the retention policy applied as key TTL.
type RedisStore struct {
	redis  *redis.Client
	policy RetentionPolicy
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, policy RetentionPolicy) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		policy: policy,
		tracer: otel.Tracer("agendmed.internal.session.redis"),
	}
}

func (r *RedisStore) Get(ctx context.Context, callerID string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.redis.get")
	defer span.End()

	raw, err := r.redis.Get(ctx, sessionKey(callerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: get %s: %w", callerID, err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: decode %s: %w", callerID, err)
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "session.redis.put")
	defer span.End()
	span.SetAttributes(attribute.String("agendmed.session_state", string(s.State)))

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.CallerID, err)
	}
	if err := r.redis.Set(ctx, sessionKey(s.CallerID), data, r.policy.TTL(s)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: put %s: %w", s.CallerID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, callerID string) error {
	ctx, span := r.tracer.Start(ctx, "session.redis.delete")
	defer span.End()
	if err := r.redis.Del(ctx, sessionKey(callerID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete %s: %w", callerID, err)
	}
	return nil
}

func sessionKey(callerID string) string {
	return sessionKeyPrefix + callerID
}
