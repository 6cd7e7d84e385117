package matterhorn

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the YYYYMMDDHHmmss layout used by the usertracking endpoint
// and by checkpoint values.
const TimestampLayout = "20060102150405"

// Session is the session block attached to every action.
type Session struct {
	SessionID string
	UserID    *string
	UserAgent *string
	UserIP    string
}

// ErrMissingSession is returned by ParseSession for an absent or null session block.
var ErrMissingSession = errors.New("action has no session")

type sessionJSON struct {
	SessionID flexString  `json:"sessionId"`
	UserID    *flexString `json:"userId"`
	UserAgent *flexString `json:"userAgent"`
	UserIP    flexString  `json:"userIp"`
}

// ParseSession decodes a raw session block. Ids may be strings or numbers; an absent
// or null userId leaves UserID nil.
func ParseSession(raw json.RawMessage) (*Session, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrMissingSession
	}
	if raw[0] != '{' {
		return nil, fmt.Errorf("session block is not an object: %s", truncate(string(raw), 32))
	}

	var sj sessionJSON
	if err := json.Unmarshal(raw, &sj); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	s := &Session{
		SessionID: string(sj.SessionID),
		UserIP:    string(sj.UserIP),
	}
	if sj.UserID != nil {
		id := string(*sj.UserID)
		s.UserID = &id
	}
	if sj.UserAgent != nil {
		ua := string(*sj.UserAgent)
		s.UserAgent = &ua
	}
	return s, nil
}

// Action is one user interaction event from the usertracking service.
type Action struct {
	ID             int64
	Created        time.Time
	MediaPackageID string
	// Session is the undecoded session block; see ParseSession. A malformed block
	// must not fail the page it arrived in.
	Session   json.RawMessage
	Type      string
	Inpoint   int64
	Outpoint  int64
	Length    int64
	IsPlaying bool
}

type actionJSON struct {
	ID             flexInt         `json:"id"`
	Created        flexTime        `json:"created"`
	MediaPackageID string          `json:"mediapackageId"`
	Session        json.RawMessage `json:"sessionId"`
	Type           string          `json:"type"`
	Inpoint        flexInt         `json:"inpoint"`
	Outpoint       flexInt         `json:"outpoint"`
	Length         flexInt         `json:"length"`
	IsPlaying      bool            `json:"isPlaying"`
}

// UnmarshalJSON decodes an action, tolerating the numeric/string variance of the API.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Action{
		ID:             int64(raw.ID),
		Created:        time.Time(raw.Created),
		MediaPackageID: raw.MediaPackageID,
		Session:        raw.Session,
		Type:           raw.Type,
		Inpoint:        int64(raw.Inpoint),
		Outpoint:       int64(raw.Outpoint),
		Length:         int64(raw.Length),
		IsPlaying:      raw.IsPlaying,
	}
	return nil
}

// Attachment is a media package attachment (preview images, slide segments).
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Ref      string `json:"ref"`
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
}

// Episode is the catalog metadata of a media package.
type Episode struct {
	ID            string
	Title         string
	Duration      int64
	Start         time.Time
	Series        string
	SeriesTitle   string
	DCType        string
	DCDescription string
	Attachments   []Attachment

	// Raw is the search result payload the episode was decoded from.
	Raw json.RawMessage
}

// End returns the instant the recording ends (start + duration).
func (e *Episode) End() time.Time {
	return e.Start.Add(time.Duration(e.Duration) * time.Millisecond)
}

// Year returns the 4-digit year segment of the series code.
func (e *Episode) Year() (string, bool) {
	return e.seriesSegment(0, 4)
}

// Term returns the 2-digit term segment of the series code.
func (e *Episode) Term() (string, bool) {
	return e.seriesSegment(4, 6)
}

// CDN returns the 5-character CDN/CRN segment of the series code.
func (e *Episode) CDN() (string, bool) {
	return e.seriesSegment(6, seriesCodeLength)
}

const seriesCodeLength = 11

func (e *Episode) seriesSegment(from, to int) (string, bool) {
	if len(e.Series) < seriesCodeLength {
		return "", false
	}
	return e.Series[from:to], true
}

type searchResultJSON struct {
	ID            string `json:"id"`
	DCTitle       string `json:"dcTitle"`
	DCType        string `json:"dcType"`
	DCDescription string `json:"dcDescription"`
	DCIsPartOf    string `json:"dcIsPartOf"`
	MediaPackage  *struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Series      string   `json:"series"`
		SeriesTitle string   `json:"seriestitle"`
		Start       flexTime `json:"start"`
		Duration    flexInt  `json:"duration"`
		Attachments *struct {
			Attachment oneOrMany[Attachment] `json:"attachment"`
		} `json:"attachments"`
	} `json:"mediapackage"`
}

// ErrMissingMediaPackage is returned when a search result has no mediapackage block.
var ErrMissingMediaPackage = errors.New("search result has no mediapackage")

// ParseEpisode decodes a single episode search result payload.
func ParseEpisode(raw []byte) (*Episode, error) {
	var res searchResultJSON
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode episode: %w", err)
	}
	if res.MediaPackage == nil {
		return nil, ErrMissingMediaPackage
	}

	mp := res.MediaPackage
	ep := &Episode{
		ID:            firstNonEmpty(mp.ID, res.ID),
		Title:         firstNonEmpty(mp.Title, res.DCTitle),
		Duration:      int64(mp.Duration),
		Start:         time.Time(mp.Start),
		Series:        strings.TrimSpace(firstNonEmpty(mp.Series, res.DCIsPartOf)),
		SeriesTitle:   mp.SeriesTitle,
		DCType:        res.DCType,
		DCDescription: res.DCDescription,
		Raw:           append(json.RawMessage(nil), raw...),
	}
	if mp.Attachments != nil {
		ep.Attachments = mp.Attachments.Attachment
	}
	return ep, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Operation is a single named step of a workflow instance.
type Operation struct {
	ID        string
	State     string
	Started   int64
	Completed int64
}

type operationJSON struct {
	ID        string  `json:"id"`
	State     string  `json:"state"`
	Started   flexInt `json:"started"`
	Completed flexInt `json:"completed"`
}

// UnmarshalJSON decodes an operation; started/completed are epoch milliseconds.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var raw operationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Operation{
		ID:        raw.ID,
		State:     raw.State,
		Started:   int64(raw.Started),
		Completed: int64(raw.Completed),
	}
	return nil
}

// Workflow is a processing workflow instance recorded against a media package.
type Workflow struct {
	ID         string
	State      string
	Template   string
	Operations []Operation
}

type workflowJSON struct {
	ID         flexInt `json:"id"`
	State      string  `json:"state"`
	Template   string  `json:"template"`
	Operations *struct {
		Operation oneOrMany[Operation] `json:"operation"`
	} `json:"operations"`
}

// UnmarshalJSON decodes a workflow instance.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var raw workflowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = Workflow{
		ID:       strconv.FormatInt(int64(raw.ID), 10),
		State:    raw.State,
		Template: raw.Template,
	}
	if raw.Operations != nil {
		w.Operations = raw.Operations.Operation
	}
	return nil
}

// Operation returns the first operation with the given id.
func (w *Workflow) Operation(id string) (Operation, bool) {
	for _, op := range w.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}
