package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/models"
)

// isoLayout matches the millisecond ISO-8601 form produced by JavaScript's
// Date.toISOString, e.g. 2024-01-01T00:00:05.000Z.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is an edit timestamp on the wire. It is always written as
// ISO-8601 UTC with millisecond precision. When reading it accepts any
// RFC 3339 string or a number of milliseconds since the Unix epoch.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t at millisecond precision.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: models.Millis(t)}
}

// TimestampFrom returns nil for a nil time.
func TimestampFrom(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	return NewTimestamp(*t)
}

// Ptr returns the wrapped time, or nil for a nil receiver.
func (ts *Timestamp) Ptr() *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}

// FormatISO renders t the way it travels on the wire.
func FormatISO(t time.Time) string {
	return models.Millis(t).Format(isoLayout)
}

// ParseISO parses a wire timestamp.
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return models.Millis(t), nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatISO(ts.Time))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := ParseISO(s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		ts.Time = t
		return nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	ts.Time = models.Millis(time.UnixMilli(ms))
	return nil
}
