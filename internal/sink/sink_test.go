package sink_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/enrich"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/sink"
)

func record(id int64) *enrich.EnrichedRecord {
	return &enrich.EnrichedRecord{
		ActionID:       id,
		Timestamp:      "2015-09-24T13:30:00Z",
		MediaPackageID: "mp-1",
		SessionID:      "sess",
		HUID:           enrich.AnonymousUser,
		IP:             "1.2.3.4",
		Proxies:        []string{"5.6.7.8"},
	}
}

func TestQueueSink_Deliver(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := sink.NewQueueSink(client, sink.QueueConfig{Prefix: "uah", Queue: "actions"})
	require.NoError(t, err)
	assert.Equal(t, "uah:actions", s.Stream())

	ctx := context.Background()
	require.NoError(t, s.Deliver(ctx, record(1)))
	require.NoError(t, s.Deliver(ctx, record(2)))
	require.NoError(t, s.Close())

	msgs, err := client.XRange(ctx, "uah:actions", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values[sink.RecordField].(string)), &got))
	assert.InDelta(t, 1, got["action_id"], 0)
	assert.Equal(t, "5.6.7.8", got["proxy1"])
	assert.NotEmpty(t, msgs[0].Values[sink.DeliveredAtField])
}

func TestQueueSink_RequiresQueueName(t *testing.T) {
	t.Parallel()

	_, err := sink.NewQueueSink(nil, sink.QueueConfig{})
	require.Error(t, err)
}

func TestQueueSink_DeliverFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	s, err := sink.NewQueueSink(client, sink.QueueConfig{Queue: "actions"})
	require.NoError(t, err)

	mr.Close()
	err = s.Deliver(context.Background(), record(7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 7")
}

func TestStreamSink_WritesJSONLinesInOrder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := sink.NewStreamSink(&buf)

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Deliver(ctx, record(i)))
	}
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var got struct {
			ActionID int64 `json:"action_id"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &got))
		assert.Equal(t, int64(i+1), got.ActionID)
	}
}

func TestStreamSink_NilRecord(t *testing.T) {
	t.Parallel()

	s := sink.NewStreamSink(&bytes.Buffer{})
	require.Error(t, s.Deliver(context.Background(), nil))
}
