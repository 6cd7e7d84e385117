package indexer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
)

const (
	previewTypeSuffix = "/player+preview"
	slideType         = "presentation/segment+preview"
)

// Document is the search index document for one episode.
type Document struct {
	MediaPackageID string     `json:"mpid"`
	Title          string     `json:"title,omitempty"`
	Duration       int64      `json:"duration"`
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
	Series         string     `json:"series,omitempty"`
	Course         string     `json:"course,omitempty"`
	Type           string     `json:"type,omitempty"`
	Description    string     `json:"description,omitempty"`
	Year           string     `json:"year,omitempty"`
	Term           string     `json:"term,omitempty"`
	CDN            string     `json:"cdn,omitempty"`
	Preview        string     `json:"preview,omitempty"`
	Slides         []Slide    `json:"slides,omitempty"`

	WorkflowID   string     `json:"workflow_id,omitempty"`
	LiveStart    *time.Time `json:"live_start,omitempty"`
	LiveEnd      *time.Time `json:"live_end,omitempty"`
	LiveDuration int64      `json:"live_duration,omitempty"`
	Available    *time.Time `json:"available,omitempty"`

	IndexedAt time.Time `json:"indexed_at"`
}

// Slide is one entry of the slide timeline.
type Slide struct {
	Time   string `json:"time"`
	Offset int64  `json:"offset_ms"`
	URL    string `json:"url,omitempty"`
}

// EpisodeMapping is the index mapping applied when the index is created.
const EpisodeMapping = `{
  "mappings": {
    "properties": {
      "mpid":          {"type": "keyword"},
      "title":         {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "duration":      {"type": "long"},
      "start":         {"type": "date"},
      "end":           {"type": "date"},
      "series":        {"type": "keyword"},
      "course":        {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "type":          {"type": "keyword"},
      "description":   {"type": "text"},
      "year":          {"type": "keyword"},
      "term":          {"type": "keyword"},
      "cdn":           {"type": "keyword"},
      "preview":       {"type": "keyword", "index": false},
      "slides": {
        "properties": {
          "time":      {"type": "keyword"},
          "offset_ms": {"type": "long"},
          "url":       {"type": "keyword", "index": false}
        }
      },
      "workflow_id":   {"type": "keyword"},
      "live_start":    {"type": "date"},
      "live_end":      {"type": "date"},
      "live_duration": {"type": "long"},
      "available":     {"type": "date"},
      "indexed_at":    {"type": "date"}
    }
  }
}`

func buildDocument(ep *matterhorn.Episode, now time.Time) *Document {
	doc := &Document{
		MediaPackageID: ep.ID,
		Title:          ep.Title,
		Duration:       ep.Duration,
		Series:         ep.Series,
		Course:         ep.SeriesTitle,
		Type:           ep.DCType,
		Description:    ep.DCDescription,
		IndexedAt:      now.UTC(),
	}
	if !ep.Start.IsZero() {
		start, end := ep.Start.UTC(), ep.End().UTC()
		doc.Start, doc.End = &start, &end
	}
	doc.Year, _ = ep.Year()
	doc.Term, _ = ep.Term()
	doc.CDN, _ = ep.CDN()

	for _, att := range ep.Attachments {
		switch {
		case doc.Preview == "" && strings.HasSuffix(att.Type, previewTypeSuffix):
			doc.Preview = att.URL
		case att.Type == slideType:
			if slide, ok := parseSlide(att); ok {
				doc.Slides = append(doc.Slides, slide)
			}
		}
	}
	return doc
}

// slideTimeRE matches media time points such as time=T00:12:34:5F1000
// (hours, minutes, seconds, frames and frames-per-second).
var slideTimeRE = regexp.MustCompile(`time=T(\d{2}):(\d{2}):(\d{2}):(\d+)F(\d+)`)

func parseSlide(att matterhorn.Attachment) (Slide, bool) {
	m := slideTimeRE.FindStringSubmatch(att.Ref)
	if m == nil {
		return Slide{}, false
	}

	var parts [5]int64
	for i := range parts {
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return Slide{}, false
		}
		parts[i] = n
	}
	hours, minutes, seconds, frames, rate := parts[0], parts[1], parts[2], parts[3], parts[4]
	if minutes > 59 || seconds > 59 || rate == 0 {
		return Slide{}, false
	}

	offset := ((hours*60+minutes)*60+seconds)*1000 + frames*1000/rate
	return Slide{
		Time:   m[1] + ":" + m[2] + ":" + m[3],
		Offset: offset,
		URL:    att.URL,
	}, true
}

const (
	captureOperation = "capture"
	retractOperation = "retract-element"
)

// applyWorkflow copies live timing and availability from a publish workflow.
func applyWorkflow(doc *Document, wf matterhorn.Workflow) {
	doc.WorkflowID = wf.ID

	if op, ok := wf.Operation(captureOperation); ok && op.Started > 0 {
		start := time.UnixMilli(op.Started).UTC()
		doc.LiveStart = &start
		if op.Completed >= op.Started {
			end := time.UnixMilli(op.Completed).UTC()
			doc.LiveEnd = &end
			doc.LiveDuration = op.Completed - op.Started
		}
	}

	if op, ok := wf.Operation(retractOperation); ok && op.Completed > 0 {
		available := time.UnixMilli(op.Completed).UTC()
		doc.Available = &available
	}
}
