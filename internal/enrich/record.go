package enrich

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// ActionInfo is the playback portion of a record.
type ActionInfo struct {
	Type      string `json:"type"`
	Inpoint   int64  `json:"inpoint"`
	Outpoint  int64  `json:"outpoint"`
	Length    int64  `json:"length"`
	IsPlaying bool   `json:"is_playing"`
}

// EpisodeInfo is the episode metadata copied onto a record. Each field is omitted
// independently when the episode does not carry it.
type EpisodeInfo struct {
	Course      string `json:"course,omitempty"`
	Title       string `json:"title,omitempty"`
	Series      string `json:"series,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Year        string `json:"year,omitempty"`
	Term        string `json:"term,omitempty"`
	CDN         string `json:"cdn,omitempty"`
}

// EnrichedRecord is the normalized output record for one action.
type EnrichedRecord struct {
	ActionID       int64       `json:"action_id"`
	Timestamp      string      `json:"timestamp"`
	MediaPackageID string      `json:"mpid"`
	SessionID      string      `json:"session_id"`
	HUID           string      `json:"huid"`
	UserAgent      *string     `json:"useragent,omitempty"`
	Action         ActionInfo  `json:"action"`
	IP             string      `json:"ip"`
	IsLive         int         `json:"is_live"`
	Episode        EpisodeInfo `json:"episode"`

	// Proxies are rendered as proxy1..proxyN.
	Proxies []string `json:"-"`
	// Created is the action's creation instant, kept for checkpointing.
	Created time.Time `json:"-"`
}

type recordAlias EnrichedRecord

// MarshalJSON renders the record with one proxyN key per proxy hop.
func (r EnrichedRecord) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(recordAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Proxies) == 0 {
		return body, nil
	}

	var buf bytes.Buffer
	buf.Write(body[:len(body)-1])
	for i, proxy := range r.Proxies {
		val, err := json.Marshal(proxy)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"proxy`)
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteString(`":`)
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
