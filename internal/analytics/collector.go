// Package analytics records served queries. Events are aggregated in
// process for the stats endpoint and, when a publisher is configured,
// shipped to Kafka in batches. Snapshot announcements travel the other
// way and trigger index reloads.
package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
)

// Publisher ships batches of events.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig sizes the event buffer and batching.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector accepts events without blocking. A background loop feeds the
// aggregator and publishes batches when BatchSize events are pending or
// FlushInterval elapses. Events are dropped when the buffer is full.
type Collector struct {
	publisher  Publisher
	aggregator *Aggregator
	cfg        CollectorConfig
	eventCh    chan SearchEvent
	dropped    atomic.Int64
	logger     *slog.Logger
	done       chan struct{}
}

// NewCollector creates a collector. publisher and aggregator may each be
// nil.
func NewCollector(publisher Publisher, aggregator *Aggregator, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:  publisher,
		aggregator: aggregator,
		cfg:        cfg,
		eventCh:    make(chan SearchEvent, cfg.BufferSize),
		logger:     slog.Default().With("component", "analytics-collector"),
		done:       make(chan struct{}),
	}
}

// Start launches the background loop. It stops when ctx is cancelled or
// Close is called, flushing what is pending.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.cfg.BatchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(context.Background(), batch)
					return
				}
				batch = c.accept(ctx, batch, event)
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				batch = c.drain(batch)
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx, batch)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

// Track enqueues event, dropping it when the buffer is full.
func (c *Collector) Track(event SearchEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the loop to finish. Track
// must not be called after Close.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) accept(ctx context.Context, batch []kafka.Event, event SearchEvent) []kafka.Event {
	if c.aggregator != nil {
		c.aggregator.Record(event)
	}
	if c.publisher == nil {
		return batch
	}
	batch = append(batch, kafka.Event{Key: event.Mode, Value: event})
	if len(batch) >= c.cfg.BatchSize {
		return c.flush(ctx, batch)
	}
	return batch
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			if c.aggregator != nil {
				c.aggregator.Record(event)
			}
			if c.publisher != nil {
				batch = append(batch, kafka.Event{Key: event.Mode, Value: event})
			}
		default:
			return batch
		}
	}
}

// flush publishes batch and returns an empty slice to refill. Failed
// batches are dropped.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 || c.publisher == nil {
		return batch[:0]
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics batch publish failed", "events", len(batch), "error", err)
	} else {
		c.logger.Debug("analytics batch published", "events", len(batch))
	}
	return make([]kafka.Event, 0, c.cfg.BatchSize)
}
