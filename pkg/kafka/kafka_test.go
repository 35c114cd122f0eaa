package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
)

func TestReaderConfigOptions(t *testing.T) {
	cfg := config.KafkaConfig{Brokers: []string{"b1:9092"}, ConsumerGroup: "hybrid"}

	rc := readerConfig(cfg, "search-events")
	assert.Equal(t, "hybrid", rc.GroupID)
	assert.Equal(t, kafka.LastOffset, rc.StartOffset)
	assert.Equal(t, []string{"b1:9092"}, rc.Brokers)

	rc = readerConfig(cfg, "snapshot-ready", WithGroupID("hybrid-node-a"), WithFirstOffset())
	assert.Equal(t, "hybrid-node-a", rc.GroupID)
	assert.Equal(t, kafka.FirstOffset, rc.StartOffset)
	assert.Equal(t, "snapshot-ready", rc.Topic)
}

func TestEncodeEvents(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	msgs, err := encodeEvents([]Event{
		{Key: "bear", Value: map[string]int{"returned": 3}},
		{Key: "shark", Value: "plain"},
	}, at)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "bear", string(msgs[0].Key))
	assert.JSONEq(t, `{"returned":3}`, string(msgs[0].Value))
	assert.Equal(t, `"plain"`, string(msgs[1].Value))
	assert.Equal(t, at, msgs[0].Time)
	assert.Equal(t, []kafka.Header{jsonHeader}, msgs[1].Headers)

	_, err = encodeEvents([]Event{{Key: "bad", Value: make(chan int)}}, at)
	assert.ErrorContains(t, err, `"bad"`)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Path string `json:"path"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"path":"cache/index.snap"}`))
	require.NoError(t, err)
	assert.Equal(t, "cache/index.snap", got.Path)

	_, err = DecodeJSON[payload]([]byte("nope"))
	assert.Error(t, err)
}

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestProducer(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "search-events")
	ctx := context.Background()

	require.NoError(t, p.PublishBatch(ctx, nil))
	require.NoError(t, p.Publish(ctx, Event{Key: "bear", Value: 1}))
	require.NoError(t, p.PublishBatch(ctx, []Event{{Key: "a", Value: 2}, {Key: "b", Value: 3}}))
	assert.Len(t, w.written, 3)

	err := p.PublishBatch(ctx, []Event{{Key: "ok", Value: 1}, {Key: "bad", Value: func() {}}})
	assert.Error(t, err)
	assert.Len(t, w.written, 3)

	w.err = errors.New("leader not available")
	err = p.Publish(ctx, Event{Key: "bear", Value: 1})
	assert.ErrorContains(t, err, "search-events")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
