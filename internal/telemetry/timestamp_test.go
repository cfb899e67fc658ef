package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "trailing Z", in: "2024-06-01T12:00:00Z", want: noon},
		{name: "fractional Z", in: "2024-06-01T12:00:00.250Z", want: noon.Add(250 * time.Millisecond)},
		{name: "microseconds", in: "2024-06-01T12:00:00.123456+00:00", want: noon.Add(123456 * time.Microsecond)},
		{name: "colon offset", in: "2024-06-01T08:00:00-04:00", want: noon},
		{name: "compact offset", in: "2024-06-01T14:00:00+0200", want: noon},
		{name: "hour offset", in: "2024-06-01T17:00:00+05", want: noon},
		{name: "space separator offset", in: "2024-06-01 08:00:00-04:00", want: noon},
		{name: "naive is UTC", in: "2024-06-01T12:00:00", want: noon},
		{name: "naive space", in: "2024-06-01 12:00:00", want: noon},
		{name: "naive minutes", in: "2024-06-01T12:00", want: noon},
		{name: "date only", in: "2024-06-01", want: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{name: "surrounding whitespace", in: "  2024-06-01T12:00:00Z\n", want: noon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "ParseTimestamp(%q) = %v; want %v", tt.in, got, tt.want)
		})
	}
}

func TestParseTimestamp_invalid(t *testing.T) {
	for _, in := range []string{"", "not-a-date", "2024-13-01T00:00:00Z", "12:00:00", "2024/06/01 12:00"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTimestamp(in)
			require.Error(t, err)

			var tsErr *TimestampParseError
			require.True(t, errors.As(err, &tsErr))
		})
	}
}

func TestTimestampParseError_message(t *testing.T) {
	assert.Equal(t, "created_date missing", (&TimestampParseError{}).Error())
	assert.Contains(t, (&TimestampParseError{Value: "nope"}).Error(), `"nope"`)
}
