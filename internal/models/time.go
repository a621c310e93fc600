package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// LocalDateTimeLayout is the zone-less layout the backend uses for date-times.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

var stringLayouts = []string{
	time.RFC3339Nano,
	LocalDateTimeLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

// Timestamp is a backend date-time. It decodes every shape the backend has
// been seen to send: ISO strings with or without zone, epoch milliseconds,
// Jackson LocalDateTime arrays and objects, and {"$date": ...} wrappers.
// Zone-less values are interpreted in local time.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON writes the zone-less local layout, or null when zero.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Local().Format(LocalDateTimeLayout))
}

// UnmarshalJSON decodes any supported date-time shape.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		t.Time = parsed
	case '[':
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("invalid date-time array: %w", err)
		}
		parsed, err := fromParts(parts)
		if err != nil {
			return err
		}
		t.Time = parsed
	case '{':
		return t.unmarshalObject(data)
	default:
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("invalid date-time: %s", data)
		}
		t.Time = time.UnixMilli(ms)
	}
	return nil
}

func (t *Timestamp) unmarshalObject(data []byte) error {
	var obj struct {
		Date       json.RawMessage `json:"$date"`
		Year       *int            `json:"year"`
		MonthValue int             `json:"monthValue"`
		DayOfMonth int             `json:"dayOfMonth"`
		Hour       int             `json:"hour"`
		Minute     int             `json:"minute"`
		Second     int             `json:"second"`
		Nano       int             `json:"nano"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj.Date) > 0 {
		return t.UnmarshalJSON(obj.Date)
	}
	if obj.Year == nil || obj.MonthValue == 0 || obj.DayOfMonth == 0 {
		return fmt.Errorf("unsupported date-time object: %s", data)
	}
	t.Time = time.Date(*obj.Year, time.Month(obj.MonthValue), obj.DayOfMonth,
		obj.Hour, obj.Minute, obj.Second, obj.Nano, time.Local)
	return nil
}

// fromParts builds a time from [year, month, day, hour?, minute?, second?, nano?].
func fromParts(parts []int) (time.Time, error) {
	if len(parts) < 3 {
		return time.Time{}, fmt.Errorf("date-time array needs at least 3 parts, got %d", len(parts))
	}
	v := make([]int, 7)
	copy(v, parts)
	return time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], v[6], time.Local), nil
}

// ParseTimestamp parses an ISO-8601 date-time string.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range stringLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", s)
}
