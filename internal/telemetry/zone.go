package telemetry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	// Zone rules are embedded so DST-aware conversion works on hosts
	// without a zoneinfo database (scratch/distroless images).
	_ "time/tzdata"
)

// DefaultDisplayZone is the site timezone of both devices.
const DefaultDisplayZone = "America/New_York"

var offsetRe = regexp.MustCompile(`^(?:UTC|GMT)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// ZoneConverter moves instants into the display timezone. Conversion only
// changes the location, never the instant, so converting twice is the same
// as converting once. The zero value converts to UTC.
type ZoneConverter struct {
	loc *time.Location
}

// NewZoneConverter accepts an IANA zone name ("America/New_York"), which
// observes daylight saving, or a fixed numeric offset ("-04:00", "UTC-4"),
// which does not.
func NewZoneConverter(name string) (ZoneConverter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDisplayZone
	}
	if m := offsetRe.FindStringSubmatch(name); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return ZoneConverter{}, fmt.Errorf("display timezone %q: offset out of range", name)
		}
		offset := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
		if m[1] == "-" {
			offset = -offset
		}
		return FixedOffset(offset), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return ZoneConverter{}, fmt.Errorf("display timezone %q: %w", name, err)
	}
	return ZoneConverter{loc: loc}, nil
}

// FixedOffset returns a converter for a constant UTC offset.
func FixedOffset(offset time.Duration) ZoneConverter {
	secs := int(offset / time.Second)
	sign := '+'
	abs := secs
	if secs < 0 {
		sign = '-'
		abs = -secs
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, (abs%3600)/60)
	return ZoneConverter{loc: time.FixedZone(name, secs)}
}

// InLocation returns a converter for loc.
func InLocation(loc *time.Location) ZoneConverter {
	return ZoneConverter{loc: loc}
}

// Convert returns t expressed in the display timezone.
func (z ZoneConverter) Convert(t time.Time) time.Time {
	return t.In(z.Location())
}

// Location returns the display location (UTC for the zero value).
func (z ZoneConverter) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

func (z ZoneConverter) String() string {
	return z.Location().String()
}
