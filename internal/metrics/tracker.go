package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
)

const (
	// DefaultKeyPrefix namespaces run history keys.
	DefaultKeyPrefix = "ua-harvester"

	// RunHistoryTTL is how long the last run summary is retained.
	RunHistoryTTL = 30 * 24 * time.Hour
)

// Run history hash fields.
const (
	FieldRunID      = "run_id"
	FieldJob        = "job"
	FieldStartedAt  = "started_at"
	FieldFinishedAt = "finished_at"
	FieldCheckpoint = "checkpoint"
	FieldSuccess    = "success"
	FieldError      = "error"
)

// RunTracker keeps the last run summary per key in a Redis hash.
type RunTracker struct {
	client redis.UniversalClient
	prefix string
	logger logger.Logger
}

// NewRunTracker creates a run tracker.
func NewRunTracker(client redis.UniversalClient, prefix string, log logger.Logger) *RunTracker {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RunTracker{client: client, prefix: prefix, logger: log}
}

// RunKey returns the hash key holding the last run for key.
func (t *RunTracker) RunKey(key string) string {
	return fmt.Sprintf("%s:runs:%s", t.prefix, key)
}

// Report implements Reporter.
func (t *RunTracker) Report(ctx context.Context, summary *RunSummary) error {
	key := t.RunKey(summary.Key)

	fields := map[string]any{
		FieldRunID:      summary.RunID,
		FieldJob:        summary.Job,
		FieldStartedAt:  summary.StartedAt.UTC().Format(time.RFC3339),
		FieldFinishedAt: summary.FinishedAt.UTC().Format(time.RFC3339),
		FieldCheckpoint: summary.Checkpoint,
		FieldSuccess:    strconv.FormatBool(summary.Succeeded()),
		FieldError:      "",
	}
	if summary.Err != nil {
		fields[FieldError] = summary.Err.Error()
	}
	for name, value := range summary.Counters {
		fields[name] = value
	}

	// Replace the previous summary atomically with its TTL
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, RunHistoryTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to record run summary",
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("record run summary: %w", err)
	}
	return nil
}

// LastRun returns the last recorded summary fields for key, or nil when there is none.
func (t *RunTracker) LastRun(ctx context.Context, key string) (map[string]string, error) {
	fields, err := t.client.HGetAll(ctx, t.RunKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("read run summary: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}
