package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/enrich"
)

const (
	// RecordField is the stream entry field holding the serialized record.
	RecordField = "record"
	// DeliveredAtField is the stream entry field holding the delivery timestamp.
	DeliveredAtField = "delivered_at"

	defaultMaxStreamLen = 100000
	defaultPrefix       = "ua-harvester"
)

// QueueConfig holds configuration for QueueSink.
type QueueConfig struct {
	Prefix       string
	Queue        string
	MaxStreamLen int64 // approximate trim length (0 = default)
}

// QueueSink publishes records to a Redis Stream. Delivery is at-least-once.
type QueueSink struct {
	client       redis.Cmdable
	stream       string
	maxStreamLen int64
}

// NewQueueSink creates a sink publishing to <prefix>:<queue>.
func NewQueueSink(client redis.Cmdable, cfg QueueConfig) (*QueueSink, error) {
	if cfg.Queue == "" {
		return nil, errors.New("queue name is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	maxLen := cfg.MaxStreamLen
	if maxLen <= 0 {
		maxLen = defaultMaxStreamLen
	}

	return &QueueSink{
		client:       client,
		stream:       prefix + ":" + cfg.Queue,
		maxStreamLen: maxLen,
	}, nil
}

// Stream returns the stream key records are published to.
func (s *QueueSink) Stream() string {
	return s.stream
}

// Deliver implements Sink.
func (s *QueueSink) Deliver(ctx context.Context, rec *enrich.EnrichedRecord) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize record %d: %w", rec.ActionID, err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxStreamLen,
		Approx: true,
		Values: map[string]any{
			RecordField:      string(data),
			DeliveredAtField: time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish record %d to stream %s: %w", rec.ActionID, s.stream, err)
	}
	return nil
}

// Close implements Sink. The Redis client is owned by the caller.
func (s *QueueSink) Close() error {
	return nil
}
