package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/metrics"
)

func testSummary() *metrics.RunSummary {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &metrics.RunSummary{
		Job:        metrics.JobHarvest,
		Key:        "ua-harvest",
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Counters:   map[string]int64{"actions": 10, "delivered": 9, "failures": 1},
		Checkpoint: "20240301115900",
	}
}

func TestRunTracker_ReportAndLastRun(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tracker := metrics.NewRunTracker(client, "uah", logger.NewNop())
	ctx := context.Background()

	last, err := tracker.LastRun(ctx, "ua-harvest")
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, tracker.Report(ctx, testSummary()))

	last, err = tracker.LastRun(ctx, "ua-harvest")
	require.NoError(t, err)
	assert.Equal(t, "run-1", last[metrics.FieldRunID])
	assert.Equal(t, "20240301115900", last[metrics.FieldCheckpoint])
	assert.Equal(t, "true", last[metrics.FieldSuccess])
	assert.Equal(t, "9", last["delivered"])
	assert.Equal(t, metrics.RunHistoryTTL, mr.TTL("uah:runs:ua-harvest"))

	failed := testSummary()
	failed.Err = errors.New("fetch actions offset 0: boom")
	failed.Counters = map[string]int64{"actions": 0}
	require.NoError(t, tracker.Report(ctx, failed))

	last, err = tracker.LastRun(ctx, "ua-harvest")
	require.NoError(t, err)
	assert.Equal(t, "false", last[metrics.FieldSuccess])
	assert.Contains(t, last[metrics.FieldError], "boom")
	assert.NotContains(t, last, "delivered", "previous summary fields are replaced")
}

func TestPushReporter_Report(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	reporter := metrics.NewPushReporter(srv.URL, srv.Client())
	require.NoError(t, reporter.Report(context.Background(), testSummary()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/harvest/key/ua-harvest", path)
	assert.Contains(t, body, "ua_harvester_run_items")
	assert.Contains(t, body, "ua_harvester_run_duration_seconds")
}

func TestPushReporter_GatewayError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	reporter := metrics.NewPushReporter(srv.URL, srv.Client())
	require.Error(t, reporter.Report(context.Background(), testSummary()))
}

type recordingReporter struct {
	calls int
	err   error
}

func (r *recordingReporter) Report(context.Context, *metrics.RunSummary) error {
	r.calls++
	return r.err
}

func TestReporters_TriesAll(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	first := &recordingReporter{err: boom}
	second := &recordingReporter{}

	err := metrics.Reporters{first, nil, second}.Report(context.Background(), testSummary())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}
