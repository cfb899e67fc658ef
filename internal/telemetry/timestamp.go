package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// TimestampParseError reports a created_date that matches none of the
// accepted layouts. It is recovered per reading.
type TimestampParseError struct {
	Value string
}

func (e *TimestampParseError) Error() string {
	if e.Value == "" {
		return "created_date missing"
	}
	return fmt.Sprintf("created_date %q is not a recognised timestamp", e.Value)
}

// Layouts carrying an explicit zone: trailing Z or a numeric offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
}

// Layouts without a zone; parsed as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses created_date into an absolute instant. Strings
// without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &TimestampParseError{Value: s}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &TimestampParseError{Value: s}
}
