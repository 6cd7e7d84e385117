package matterhorn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var jsonNull = []byte("null")

// oneOrMany decodes Matterhorn list fields, which are rendered as a bare object
// when the list has exactly one element.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) || bytes.Equal(data, []byte(`""`)) {
		*o = nil
		return nil
	}

	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*o = items
		return nil
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	*o = []T{item}
	return nil
}

// flexInt accepts a JSON number, a quoted number, or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*f = 0
		return nil
	}

	s := strings.Trim(string(data), `"`)
	if s == "" {
		*f = 0
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, floatErr := strconv.ParseFloat(s, 64)
		if floatErr != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		n = int64(fl)
	}
	*f = flexInt(n)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	TimestampLayout,
}

// flexTime accepts ISO-8601 strings in the variants Matterhorn emits, or epoch milliseconds.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*f = flexTime(time.Time{})
		return nil
	}

	if data[0] != '"' {
		var ms flexInt
		if err := ms.UnmarshalJSON(data); err != nil {
			return err
		}
		*f = flexTime(time.UnixMilli(int64(ms)).UTC())
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = flexTime(time.Time{})
		return nil
	}

	t, err := ParseTime(s)
	if err != nil {
		return err
	}
	*f = flexTime(t)
	return nil
}

// ParseTime parses a timestamp in any of the layouts Matterhorn uses.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// flexString accepts a JSON string or a bare number. User ids arrive as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*f = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", truncate(string(data), 32))
	}
	*f = flexString(n.String())
	return nil
}
