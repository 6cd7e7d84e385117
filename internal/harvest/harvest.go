// Package harvest runs one incremental harvest: fetch actions for a time window,
// enrich and deliver each one, then advance the checkpoint.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/cache"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/checkpoint"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/enrich"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/metrics"
	"github.com/jonesrussell/north-cloud/ua-harvester/internal/sink"
)

var (
	// ErrSpanTooLarge is returned when the window exceeds the maximum span.
	ErrSpanTooLarge = errors.New("harvest window exceeds maximum span")
	// ErrInvalidWindow is returned when the window starts after it ends.
	ErrInvalidWindow = errors.New("harvest window start is after end")
)

// Defaults.
const (
	DefaultInterval      = 2 * time.Minute
	DefaultMaxSpan       = 24 * time.Hour
	DefaultBatchSize     = 1000
	DefaultWait          = time.Second
	DefaultCheckpointKey = "ua-harvest"
)

// ActionFetcher retrieves one page of actions.
type ActionFetcher interface {
	FetchActions(ctx context.Context, start, end time.Time, limit, offset int) ([]matterhorn.Action, error)
}

// RecordEnricher converts an action into an output record.
type RecordEnricher interface {
	Enrich(ctx context.Context, action matterhorn.Action) (*enrich.EnrichedRecord, error)
}

// CacheStats exposes episode cache effectiveness.
type CacheStats interface {
	Stats() cache.Stats
}

// Options controls one run.
type Options struct {
	// Start and End bound the window. Nil Start resumes from the checkpoint; nil End means now.
	Start *time.Time
	End   *time.Time

	// Interval is the lookback used when there is no checkpoint.
	Interval time.Duration
	// MaxSpan bounds End-Start unless DisableSpanCheck is set.
	MaxSpan          time.Duration
	DisableSpanCheck bool

	BatchSize     int
	Wait          time.Duration
	CheckpointKey string
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxSpan <= 0 {
		o.MaxSpan = DefaultMaxSpan
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.CheckpointKey == "" {
		o.CheckpointKey = DefaultCheckpointKey
	}
}

// Stats summarizes a run.
type Stats struct {
	RunID       string
	Start       time.Time
	End         time.Time
	Batches     int
	Actions     int
	Delivered   int
	Failures    int
	CacheHits   int64
	CacheMisses int64
	Checkpoint  string
}

// Harvester wires the fetcher, enricher, sink and checkpoint store together.
type Harvester struct {
	fetcher  ActionFetcher
	enricher RecordEnricher
	sink     sink.Sink
	store    checkpoint.Store
	log      logger.Logger

	cacheStats CacheStats
	reporter   metrics.Reporter
	now        func() time.Time
	sleep      func(time.Duration)

	state State
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithCacheStats reports episode cache hits and misses in the run summary.
func WithCacheStats(s CacheStats) Option {
	return func(h *Harvester) {
		h.cacheStats = s
	}
}

// WithReporter records run summaries.
func WithReporter(r metrics.Reporter) Option {
	return func(h *Harvester) {
		h.reporter = r
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) {
		h.now = now
	}
}

// WithSleep overrides the inter-batch sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(h *Harvester) {
		h.sleep = sleep
	}
}

// New creates a Harvester.
func New(
	fetcher ActionFetcher,
	enricher RecordEnricher,
	out sink.Sink,
	store checkpoint.Store,
	log logger.Logger,
	opts ...Option,
) *Harvester {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Harvester{
		fetcher:  fetcher,
		enricher: enricher,
		sink:     out,
		store:    store,
		log:      log,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the phase of the current or last run.
func (h *Harvester) State() State {
	return h.state
}

// Run executes one harvest. A returned error is fatal for the run; per-record failures
// are only counted. The checkpoint is advanced only when the window was fully paginated.
func (h *Harvester) Run(ctx context.Context, opts Options) (*Stats, error) {
	opts.setDefaults()

	stats := &Stats{RunID: uuid.NewString()}
	log := h.log.With(
		logger.String("run_id", stats.RunID),
		logger.String("checkpoint_key", opts.CheckpointKey),
	)
	ctx = logger.WithContext(ctx, log)
	startedAt := h.now()

	err := h.run(ctx, opts, stats, log)
	if err != nil {
		failedIn := h.state
		h.transition(log, StateAborted)
		log.Error("Harvest aborted",
			logger.String("state", failedIn.String()),
			logger.Error(err),
		)
		if stats.Batches > 0 {
			h.logSummary(log, stats)
		}
	}

	h.report(ctx, log, opts, stats, startedAt, err)
	return stats, err
}

func (h *Harvester) run(ctx context.Context, opts Options, stats *Stats, log logger.Logger) error {
	h.transition(log, StateInit)
	start, end, err := h.window(ctx, opts)
	if err != nil {
		return err
	}
	stats.Start, stats.End = start, end

	h.transition(log, StateWindowing)
	if start.After(end) {
		return fmt.Errorf("%w: start %s, end %s", ErrInvalidWindow,
			matterhorn.FormatTimestamp(start), matterhorn.FormatTimestamp(end))
	}
	if span := end.Sub(start); !opts.DisableSpanCheck && span > opts.MaxSpan {
		return fmt.Errorf("%w: %s > %s", ErrSpanTooLarge, span, opts.MaxSpan)
	}

	log.Info("Harvesting actions",
		logger.String("start", matterhorn.FormatTimestamp(start)),
		logger.String("end", matterhorn.FormatTimestamp(end)),
		logger.Int("batch_size", opts.BatchSize),
	)

	h.transition(log, StatePaginating)
	last, err := h.paginate(ctx, opts, start, end, stats, log)
	if err != nil {
		return err
	}

	h.transition(log, StateCheckpointing)
	mark := end
	if last != nil {
		mark = *last
	}
	stats.Checkpoint = matterhorn.FormatTimestamp(mark)
	if setErr := h.store.Set(ctx, opts.CheckpointKey, stats.Checkpoint); setErr != nil {
		log.Error("Failed to write checkpoint",
			logger.String("checkpoint", stats.Checkpoint),
			logger.Error(setErr),
		)
	}

	h.transition(log, StateDone)
	h.logSummary(log, stats)
	return nil
}

// window resolves the run's [start, end] bounds.
func (h *Harvester) window(ctx context.Context, opts Options) (start, end time.Time, err error) {
	now := h.now().UTC()

	end = now
	if opts.End != nil {
		end = opts.End.UTC()
	}

	if opts.Start != nil {
		return opts.Start.UTC(), end, nil
	}

	value, found, err := h.store.Get(ctx, opts.CheckpointKey)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("read checkpoint: %w", err)
	}
	if !found {
		return now.Add(-opts.Interval), end, nil
	}

	start, err = matterhorn.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("read checkpoint: %w", err)
	}
	return start, end, nil
}

// paginate pages through the window until an empty batch and returns the creation
// time of the last observed action, or nil when there were none.
func (h *Harvester) paginate(
	ctx context.Context, opts Options, start, end time.Time, stats *Stats, log logger.Logger,
) (*time.Time, error) {
	var last *time.Time

	for offset := 0; ; offset += opts.BatchSize {
		if offset > 0 {
			h.transition(log, StatePaginating)
		}
		actions, err := h.fetcher.FetchActions(ctx, start, end, opts.BatchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch actions offset %d: %w", offset, err)
		}
		if len(actions) == 0 {
			return last, nil
		}

		h.transition(log, StateDraining)
		stats.Batches++
		log.Debug("Processing batch",
			logger.Int("batch", stats.Batches),
			logger.Int("offset", offset),
			logger.Int("actions", len(actions)),
		)

		for i := range actions {
			created := actions[i].Created
			last = &created
			stats.Actions++

			if err := h.process(ctx, actions[i]); err != nil {
				stats.Failures++
				log.Warn("Failed to process action",
					logger.Int64("action_id", actions[i].ID),
					logger.String("mpid", actions[i].MediaPackageID),
					logger.Error(err),
				)
				continue
			}
			stats.Delivered++
		}

		if opts.Wait > 0 {
			h.sleep(opts.Wait)
		}
	}
}

func (h *Harvester) process(ctx context.Context, action matterhorn.Action) error {
	rec, err := h.enricher.Enrich(ctx, action)
	if err != nil {
		return err
	}
	if err := h.sink.Deliver(ctx, rec); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}

func (h *Harvester) transition(log logger.Logger, next State) {
	h.state = next
	log.Debug("Harvest state", logger.String("state", next.String()))
}

func (h *Harvester) logSummary(log logger.Logger, stats *Stats) {
	if h.cacheStats != nil {
		cs := h.cacheStats.Stats()
		stats.CacheHits, stats.CacheMisses = cs.Hits, cs.Misses
	}

	log.Info("Harvest summary",
		logger.Int("batches", stats.Batches),
		logger.Int("actions", stats.Actions),
		logger.Int("delivered", stats.Delivered),
		logger.Int("failures", stats.Failures),
		logger.Int64("cache_hits", stats.CacheHits),
		logger.Int64("cache_misses", stats.CacheMisses),
		logger.String("checkpoint", stats.Checkpoint),
	)
}

func (h *Harvester) report(
	ctx context.Context, log logger.Logger, opts Options, stats *Stats, startedAt time.Time, runErr error,
) {
	if h.reporter == nil {
		return
	}

	summary := &metrics.RunSummary{
		Job:        metrics.JobHarvest,
		Key:        opts.CheckpointKey,
		RunID:      stats.RunID,
		StartedAt:  startedAt,
		FinishedAt: h.now(),
		Counters: map[string]int64{
			"batches":      int64(stats.Batches),
			"actions":      int64(stats.Actions),
			"delivered":    int64(stats.Delivered),
			"failures":     int64(stats.Failures),
			"cache_hits":   stats.CacheHits,
			"cache_misses": stats.CacheMisses,
		},
		Checkpoint: stats.Checkpoint,
		Err:        runErr,
	}
	if err := h.reporter.Report(ctx, summary); err != nil {
		log.Warn("Failed to report run summary", logger.Error(err))
	}
}
