package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/enrich"
)

// StreamSink writes one JSON record per line, in delivery order.
type StreamSink struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewStreamSink creates a sink writing JSON lines to w.
func NewStreamSink(w io.Writer) *StreamSink {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &StreamSink{w: bw, enc: enc}
}

// Deliver implements Sink.
func (s *StreamSink) Deliver(_ context.Context, rec *enrich.EnrichedRecord) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("write record %d: %w", rec.ActionID, err)
	}
	return s.w.Flush()
}

// Close implements Sink.
func (s *StreamSink) Close() error {
	return s.w.Flush()
}
