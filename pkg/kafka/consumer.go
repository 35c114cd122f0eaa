// Package kafka carries search events and snapshot announcements over
// segmentio/kafka-go. Producers encode values as JSON; consumers hand raw
// messages to a MessageHandler, retrying failures a few times before
// committing past them.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
)

// MessageHandler processes one message. Returning an error asks for a
// retry; handlers that want a message skipped return nil.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer feeds one topic to a MessageHandler.
type Consumer struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	handler   MessageHandler
	retry     resilience.RetryConfig
	closeOnce sync.Once
	closeErr  error
}

// ConsumerOption adjusts the reader configuration.
type ConsumerOption func(*kafka.ReaderConfig)

// WithGroupID overrides cfg.ConsumerGroup. Broadcast topics such as snapshot
// announcements need one group per instance so every instance sees every
// message.
func WithGroupID(id string) ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.GroupID = id }
}

// WithFirstOffset makes a new group start from the oldest retained message
// instead of the newest.
func WithFirstOffset() ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.StartOffset = kafka.FirstOffset }
}

func readerConfig(cfg config.KafkaConfig, topic string, opts ...ConsumerOption) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return rc
}

// handlerRetry bounds how long one message can hold up its partition.
var handlerRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := readerConfig(cfg, topic, opts...)
	return &Consumer{
		reader:  kafka.NewReader(rc),
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", rc.GroupID),
		handler: handler,
		retry:   handlerRetry,
	}
}

// Start consumes until ctx ends. Each message gets a few handler attempts;
// one that still fails is logged and committed anyway, since replaying it
// forever would stall every later message on its partition. Fetch errors
// back off instead of spinning.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.Close()

	fetchBackoff := time.Duration(0)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			fetchBackoff = min(max(2*fetchBackoff, 100*time.Millisecond), 5*time.Second)
			c.logger.Error("fetch failed", "error", err, "backoff", fetchBackoff)
			select {
			case <-time.After(fetchBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		fetchBackoff = 0

		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
		log.Debug("message received", "key", string(msg.Key), "bytes", len(msg.Value))
		err = resilience.Retry(ctx, "kafka handler", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("handler gave up on message, skipping", "error", err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("commit failed", "error", err)
		}
	}
}

// Close releases the reader; later calls return the first result.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.reader.Close() })
	return c.closeErr
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
