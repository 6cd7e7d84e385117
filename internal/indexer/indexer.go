// Package indexer walks the episode catalog and writes one search document per episode.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/metrics"
)

// ErrAmbiguousWorkflow is returned when an episode has more than one publish workflow.
var ErrAmbiguousWorkflow = errors.New("more than one matching workflow")

// Defaults.
const (
	DefaultIndex              = "episodes"
	DefaultBatchSize          = 100
	DefaultWorkflowDefinition = "DCE-archive-publish-external"
	workflowStateSucceeded    = "SUCCEEDED"
)

// Catalog pages through episode search results.
type Catalog interface {
	SearchEpisodes(ctx context.Context, q matterhorn.EpisodeQuery) ([]json.RawMessage, error)
}

// WorkflowSource looks up workflow instances.
type WorkflowSource interface {
	Workflows(ctx context.Context, q matterhorn.WorkflowQuery) ([]matterhorn.Workflow, error)
}

// DocumentIndex stores documents by id.
type DocumentIndex interface {
	EnsureIndex(ctx context.Context, index, mapping string) error
	IndexDocument(ctx context.Context, index, id string, doc any) error
}

// Options controls one catalog walk.
type Options struct {
	Index string
	// CreatedFromDays limits the walk to episodes created in the last N days (0 = all).
	CreatedFromDays    int
	BatchSize          int
	Wait               time.Duration
	WorkflowDefinition string
}

func (o *Options) setDefaults() {
	if o.Index == "" {
		o.Index = DefaultIndex
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.WorkflowDefinition == "" {
		o.WorkflowDefinition = DefaultWorkflowDefinition
	}
}

// Stats summarizes a catalog walk.
type Stats struct {
	RunID    string
	Pages    int
	Episodes int
	Indexed  int
	Skipped  int
	Failures int
}

// Indexer correlates catalog episodes with workflows and indexes them.
type Indexer struct {
	catalog   Catalog
	workflows WorkflowSource
	index     DocumentIndex
	log       logger.Logger
	reporter  metrics.Reporter
	now       func() time.Time
	sleep     func(time.Duration)
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithReporter records run summaries.
func WithReporter(r metrics.Reporter) Option {
	return func(i *Indexer) { i.reporter = r }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(i *Indexer) { i.now = now }
}

// WithSleep overrides the inter-page sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(i *Indexer) { i.sleep = sleep }
}

// New creates an Indexer. The catalog is usually the engage host and workflows the admin host.
func New(catalog Catalog, workflows WorkflowSource, index DocumentIndex, log logger.Logger, opts ...Option) *Indexer {
	if log == nil {
		log = logger.NewNop()
	}
	i := &Indexer{
		catalog:   catalog,
		workflows: workflows,
		index:     index,
		log:       log,
		now:       time.Now,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run walks the catalog. Catalog query failures abort the walk; per-episode failures
// are logged and counted.
func (i *Indexer) Run(ctx context.Context, opts Options) (*Stats, error) {
	opts.setDefaults()

	stats := &Stats{RunID: uuid.NewString()}
	log := i.log.With(
		logger.String("run_id", stats.RunID),
		logger.String("index", opts.Index),
	)
	startedAt := i.now()

	err := i.run(ctx, opts, stats, log)
	if err != nil {
		log.Error("Episode load aborted", logger.Error(err))
	}
	if err == nil || stats.Pages > 0 {
		log.Info("Episode load summary",
			logger.Int("pages", stats.Pages),
			logger.Int("episodes", stats.Episodes),
			logger.Int("indexed", stats.Indexed),
			logger.Int("skipped", stats.Skipped),
			logger.Int("failures", stats.Failures),
		)
	}

	i.report(ctx, log, opts, stats, startedAt, err)
	return stats, err
}

func (i *Indexer) run(ctx context.Context, opts Options, stats *Stats, log logger.Logger) error {
	if err := i.index.EnsureIndex(ctx, opts.Index, EpisodeMapping); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	query := matterhorn.EpisodeQuery{Limit: opts.BatchSize}
	if opts.CreatedFromDays > 0 {
		from := i.now().UTC().AddDate(0, 0, -opts.CreatedFromDays)
		query.CreatedFrom = &from
		log.Info("Limiting catalog walk", logger.Time("created_from", from))
	}

	for {
		results, err := i.catalog.SearchEpisodes(ctx, query)
		if err != nil {
			return fmt.Errorf("search episodes offset %d: %w", query.Offset, err)
		}
		if len(results) == 0 {
			return nil
		}

		stats.Pages++
		for _, raw := range results {
			stats.Episodes++
			i.loadEpisode(ctx, opts, raw, stats, log)
		}

		query.Offset += opts.BatchSize
		if opts.Wait > 0 {
			i.sleep(opts.Wait)
		}
	}
}

func (i *Indexer) loadEpisode(ctx context.Context, opts Options, raw json.RawMessage, stats *Stats, log logger.Logger) {
	ep, err := matterhorn.ParseEpisode(raw)
	if err != nil {
		stats.Failures++
		log.Warn("Failed to decode episode", logger.Error(err))
		return
	}
	if ep.ID == "" {
		stats.Failures++
		log.Warn("Skipping episode without media package id")
		return
	}
	log = log.With(logger.String("mpid", ep.ID))

	doc := buildDocument(ep, i.now())

	wf, err := i.publishWorkflow(ctx, ep.ID, opts.WorkflowDefinition)
	switch {
	case errors.Is(err, ErrAmbiguousWorkflow):
		stats.Skipped++
		log.Error("Skipping episode", logger.Error(err))
		return
	case err != nil:
		stats.Failures++
		log.Warn("Workflow lookup failed", logger.Error(err))
		return
	case wf != nil:
		applyWorkflow(doc, *wf)
	}

	if err := i.index.IndexDocument(ctx, opts.Index, ep.ID, doc); err != nil {
		stats.Failures++
		log.Warn("Failed to index episode", logger.Error(err))
		return
	}
	stats.Indexed++
}

// publishWorkflow returns the single succeeded publish workflow, nil when there is none.
func (i *Indexer) publishWorkflow(ctx context.Context, mediaPackageID, definition string) (*matterhorn.Workflow, error) {
	wfs, err := i.workflows.Workflows(ctx, matterhorn.WorkflowQuery{
		MediaPackageID: mediaPackageID,
		State:          workflowStateSucceeded,
		Definition:     definition,
	})
	if err != nil {
		return nil, err
	}

	switch len(wfs) {
	case 0:
		return nil, nil
	case 1:
		return &wfs[0], nil
	default:
		return nil, fmt.Errorf("%w: %d workflows for %s", ErrAmbiguousWorkflow, len(wfs), mediaPackageID)
	}
}

func (i *Indexer) report(
	ctx context.Context, log logger.Logger, opts Options, stats *Stats, startedAt time.Time, runErr error,
) {
	if i.reporter == nil {
		return
	}

	summary := &metrics.RunSummary{
		Job:        metrics.JobLoadEpisodes,
		Key:        opts.Index,
		RunID:      stats.RunID,
		StartedAt:  startedAt,
		FinishedAt: i.now(),
		Counters: map[string]int64{
			"pages":    int64(stats.Pages),
			"episodes": int64(stats.Episodes),
			"indexed":  int64(stats.Indexed),
			"skipped":  int64(stats.Skipped),
			"failures": int64(stats.Failures),
		},
		Err: runErr,
	}
	if err := i.reporter.Report(ctx, summary); err != nil {
		log.Warn("Failed to report run summary", logger.Error(err))
	}
}
