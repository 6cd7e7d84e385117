// Package sink delivers enriched records downstream.
package sink

import (
	"context"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/enrich"
)

// Output names.
const (
	OutputQueue  = "queue"
	OutputStdout = "stdout"
)

// Sink delivers one record at a time.
type Sink interface {
	Deliver(ctx context.Context, rec *enrich.EnrichedRecord) error
	Close() error
}
