package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	// MetricsNamespace is the namespace for all pushed metrics.
	MetricsNamespace = "ua_harvester"

	// MetricsSubsystem is the subsystem for run metrics.
	MetricsSubsystem = "run"
)

// PushReporter pushes run summaries to a Prometheus Pushgateway, grouped by job and key.
type PushReporter struct {
	url    string
	client *http.Client
}

// NewPushReporter creates a reporter for the Pushgateway at url.
func NewPushReporter(url string, client *http.Client) *PushReporter {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushReporter{url: url, client: client}
}

type runMetrics struct {
	counters      *prometheus.GaugeVec
	duration      prometheus.Gauge
	success       prometheus.Gauge
	lastCompleted prometheus.Gauge
}

func newRunMetrics(reg prometheus.Registerer) *runMetrics {
	factory := promauto.With(reg)
	return &runMetrics{
		counters: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "items",
			Help:      "Per-run item counts by counter name",
		}, []string{"counter"}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "duration_seconds",
			Help:      "Wall time of the last run",
		}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "success",
			Help:      "1 if the last run completed without a fatal error",
		}),
		lastCompleted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "last_completed_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// Report implements Reporter.
func (p *PushReporter) Report(ctx context.Context, summary *RunSummary) error {
	reg := prometheus.NewRegistry()
	m := newRunMetrics(reg)

	for name, value := range summary.Counters {
		m.counters.WithLabelValues(name).Set(float64(value))
	}
	m.duration.Set(summary.Duration().Seconds())
	if summary.Succeeded() {
		m.success.Set(1)
	}
	m.lastCompleted.Set(float64(summary.FinishedAt.Unix()))

	pusher := push.New(p.url, summary.Job).
		Gatherer(reg).
		Client(p.client)
	if summary.Key != "" {
		pusher = pusher.Grouping("key", summary.Key)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push %s metrics: %w", summary.Job, err)
	}
	return nil
}
