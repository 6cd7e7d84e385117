// Package metrics reports job run summaries to Prometheus and Redis.
package metrics

import (
	"context"
	"errors"
	"time"
)

// Job names.
const (
	JobHarvest      = "harvest"
	JobLoadEpisodes = "load_episodes"
)

// RunSummary is the outcome of one job run.
type RunSummary struct {
	Job        string
	Key        string
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Counters   map[string]int64
	Checkpoint string
	Err        error
}

// Succeeded reports whether the run finished without a fatal error.
func (s *RunSummary) Succeeded() bool {
	return s.Err == nil
}

// Duration is the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Reporter records a run summary somewhere.
type Reporter interface {
	Report(ctx context.Context, summary *RunSummary) error
}

// Reporters fans a summary out to every reporter. All reporters are tried.
type Reporters []Reporter

// Report implements Reporter.
func (rs Reporters) Report(ctx context.Context, summary *RunSummary) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
