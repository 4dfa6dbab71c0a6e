// Package timezone converts between user wall-clock times and UTC instants.
// All functions load the IANA zone explicitly, so results never depend on
// the host's default timezone.
package timezone

import (
	"fmt"
	"time"
)

// WallClock holds the local calendar fields of an instant in some zone.
type WallClock struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// String formats the wall clock as "2006-01-02 15:04:05".
func (w WallClock) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second)
}

// ToUTC interprets a wall-clock time in the given IANA zone and returns the
// UTC instant. Local times skipped by a DST transition resolve by the zone
// rule (shifted forward past the gap); ambiguous times resolve to the first
// of the two offsets. Neither case is an error.
func ToUTC(wc WallClock, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("timezone: load %q: %w", zone, err)
	}
	return time.Date(wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, 0, loc).UTC(), nil
}

// FromUTC returns the wall-clock fields of a UTC instant in the given zone.
func FromUTC(instant time.Time, zone string) (WallClock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return WallClock{}, fmt.Errorf("timezone: load %q: %w", zone, err)
	}
	local := instant.In(loc)
	return WallClock{
		Year:   local.Year(),
		Month:  local.Month(),
		Day:    local.Day(),
		Hour:   local.Hour(),
		Minute: local.Minute(),
		Second: local.Second(),
	}, nil
}

// FormatInZone renders a UTC instant in the given zone with a Go layout.
func FormatInZone(instant time.Time, zone, layout string) (string, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("timezone: load %q: %w", zone, err)
	}
	return instant.In(loc).Format(layout), nil
}
