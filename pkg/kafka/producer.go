package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
)

// Event is one message to publish. Key picks the partition (query text for
// search events, snapshot path for announcements); Value is sent as JSON.
type Event struct {
	Key   string
	Value any
}

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON events to one topic and waits for all in-sync
// replicas to acknowledge.
type Producer struct {
	w      messageWriter
	topic  string
	now    func() time.Time
	logger *slog.Logger
}

func newWriter(cfg config.KafkaConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return newProducer(newWriter(cfg, topic), topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		w:      w,
		topic:  topic,
		now:    time.Now,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish sends one event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so a bad value
// fails the whole batch without a partial write. An empty batch is a no-op.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := encodeEvents(events, p.now())
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "messages", len(msgs), "error", err)
		return fmt.Errorf("publishing %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("published", "messages", len(msgs))
	return nil
}

// Close flushes buffered messages.
func (p *Producer) Close() error {
	return p.w.Close()
}

var jsonHeader = kafka.Header{Key: "content-type", Value: []byte("application/json")}

func encodeEvents(events []Event, at time.Time) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		value, err := json.Marshal(ev.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event value for key %q: %w", ev.Key, err)
		}
		msgs[i] = kafka.Message{
			Key:     []byte(ev.Key),
			Value:   value,
			Time:    at,
			Headers: []kafka.Header{jsonHeader},
		}
	}
	return msgs, nil
}
