package indexer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ua-harvester/internal/matterhorn"
)

func TestParseSlide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ref    string
		ok     bool
		time   string
		offset int64
	}{
		{name: "whole seconds", ref: "track:abc;time=T00:12:34:0F1000", ok: true, time: "00:12:34", offset: 754000},
		{name: "with frames", ref: "catalog:x;time=T01:00:00:15F30", ok: true, time: "01:00:00", offset: 3600500},
		{name: "no marker", ref: "track:abc", ok: false},
		{name: "truncated marker", ref: "time=T00:12", ok: false},
		{name: "zero frame rate", ref: "time=T00:00:01:0F0", ok: false},
		{name: "bad minutes", ref: "time=T00:75:00:0F1000", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			slide, ok := parseSlide(matterhorn.Attachment{Ref: tt.ref, URL: "http://x/s.jpg"})
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.time, slide.Time)
				assert.Equal(t, tt.offset, slide.Offset)
				assert.Equal(t, "http://x/s.jpg", slide.URL)
			}
		})
	}
}

func TestBuildDocument(t *testing.T) {
	t.Parallel()

	start := time.Date(2016, 2, 1, 14, 0, 0, 0, time.UTC)
	ep := &matterhorn.Episode{
		ID:          "mp-1",
		Title:       "Week 1",
		Duration:    5400000,
		Start:       start,
		Series:      "20160212345",
		SeriesTitle: "CS 50",
		DCType:      "L01",
		Attachments: []matterhorn.Attachment{
			{Type: "presenter/player+preview", URL: "http://x/presenter.jpg"},
			{Type: "presentation/player+preview", URL: "http://x/presentation.jpg"},
			{Type: "presentation/segment+preview", Ref: "track:t;time=T00:00:10:0F1000", URL: "http://x/1.jpg"},
			{Type: "presentation/segment+preview", Ref: "track:t", URL: "http://x/broken.jpg"},
			{Type: "presentation/segment+preview", Ref: "track:t;time=T00:05:00:0F1000", URL: "http://x/2.jpg"},
		},
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := buildDocument(ep, now)

	assert.Equal(t, "mp-1", doc.MediaPackageID)
	assert.Equal(t, "CS 50", doc.Course)
	assert.Equal(t, "2016", doc.Year)
	assert.Equal(t, "02", doc.Term)
	assert.Equal(t, "12345", doc.CDN)
	require.NotNil(t, doc.Start)
	assert.Equal(t, start, *doc.Start)
	assert.Equal(t, start.Add(90*time.Minute), *doc.End)
	assert.Equal(t, "http://x/presenter.jpg", doc.Preview)
	require.Len(t, doc.Slides, 2, "malformed slide skipped individually")
	assert.Equal(t, int64(10000), doc.Slides[0].Offset)
	assert.Equal(t, int64(300000), doc.Slides[1].Offset)
	assert.Equal(t, now, doc.IndexedAt)
}

func TestBuildDocument_MinimalEpisode(t *testing.T) {
	t.Parallel()

	doc := buildDocument(&matterhorn.Episode{ID: "mp-2", Series: "short"}, time.Now())
	assert.Nil(t, doc.Start)
	assert.Empty(t, doc.Year)
	assert.Empty(t, doc.Preview)
	assert.Empty(t, doc.Slides)
}

func TestApplyWorkflow(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	applyWorkflow(doc, matterhorn.Workflow{
		ID: "42",
		Operations: []matterhorn.Operation{
			{ID: "capture", Started: 1454335200000, Completed: 1454340600000},
			{ID: "retract-element", Started: 1454400000000, Completed: 1454400005000},
		},
	})

	assert.Equal(t, "42", doc.WorkflowID)
	require.NotNil(t, doc.LiveStart)
	assert.Equal(t, time.UnixMilli(1454335200000).UTC(), *doc.LiveStart)
	assert.Equal(t, time.UnixMilli(1454340600000).UTC(), *doc.LiveEnd)
	assert.Equal(t, int64(5400000), doc.LiveDuration)
	require.NotNil(t, doc.Available)
	assert.Equal(t, time.UnixMilli(1454400005000).UTC(), *doc.Available)
}

func TestApplyWorkflow_NoOperations(t *testing.T) {
	t.Parallel()

	doc := &Document{}
	applyWorkflow(doc, matterhorn.Workflow{ID: "7"})
	assert.Nil(t, doc.LiveStart)
	assert.Nil(t, doc.Available)
	assert.Zero(t, doc.LiveDuration)
}
