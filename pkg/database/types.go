package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp stores a UTC instant as INTEGER unix milliseconds so range filters
// compare numerically.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// TimestampPtr converts an optional time into an optional Timestamp.
func TimestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := NewTimestamp(*t)
	return &ts
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		t.Time = time.UnixMilli(v).UTC()
	case float64:
		t.Time = time.UnixMilli(int64(v)).UTC()
	case time.Time:
		t.Time = v.UTC()
	case nil:
		t.Time = time.Time{}
	default:
		return fmt.Errorf("Timestamp.Scan: unsupported type %T", src)
	}
	return nil
}

func (t Timestamp) Value() (driver.Value, error) {
	return t.UnixMilli(), nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &t.Time)
}

// JSONText stores a JSON document in a TEXT column.
type JSONText json.RawMessage

func (j *JSONText) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSONText(v)
	case nil:
		*j = nil
	default:
		return fmt.Errorf("JSONText.Scan: expected string or []byte, got %T", src)
	}
	return nil
}

func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j *JSONText) UnmarshalJSON(b []byte) error {
	*j = append((*j)[0:0], b...)
	return nil
}
