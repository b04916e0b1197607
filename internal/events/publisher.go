package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wolfman30/agendmed/pkg/logging"
)

// Publisher fans booking events out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, key string, evt CanonicalEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes canonical envelopes to a Kafka topic keyed by caller.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *logging.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("events: kafka topic cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		BatchTimeout: 50 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error("kafka writer error", "detail", fmt.Sprintf(msg, args...))
		}),
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}, nil
}

func newKafkaPublisherWithWriter(w messageWriter, topic string, logger *logging.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, evt CanonicalEvent) error {
	env, err := NewEnvelope(key, evt)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(env.EventType)},
		{Key: "event_id", Value: []byte(env.EventID.String())},
	}
	if env.TenantID != "" {
		headers = append(headers, kafka.Header{Key: "tenant_id", Value: []byte(env.TenantID)})
	}
	msg := kafka.Message{
		Key:     []byte(env.CallerID),
		Value:   value,
		Time:    env.OccurredAt,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s to %s: %w", env.EventType, p.topic, err)
	}
	p.logger.Debug("event published", "type", env.EventType, "topic", p.topic, "event_id", env.EventID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, key string, evt CanonicalEvent) error {
	if evt == nil {
		return errNilEvent
	}
	p.logger.Info("event", "type", evt.EventType(), "key", key)
	return nil
}
