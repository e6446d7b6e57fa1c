// Package version tracks the per-scope loop version marker devices compare against.
package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Marker is a loop version in unix milliseconds. Zero means absent.
type Marker int64

func FromTime(t time.Time) Marker {
	return Marker(t.UnixMilli())
}

func (m Marker) IsZero() bool {
	return m <= 0
}

func (m Marker) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

func (m Marker) After(other Marker) bool {
	return m > other
}

func (m Marker) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// Later returns the newer of two markers.
func Later(a, b Marker) Marker {
	if a > b {
		return a
	}
	return b
}

var markerLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseMarker accepts decimal milliseconds, decimal seconds (10 digits or fewer),
// RFC3339 or "YYYY-MM-DD HH:MM:SS" (read as UTC). An empty string is the zero marker.
func ParseMarker(s string) (Marker, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid version marker %q", s)
		}
		if len(s) <= 10 {
			return Marker(n * 1000), nil
		}
		return Marker(n), nil
	}
	for _, layout := range markerLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return FromTime(t), nil
		}
	}
	return 0, fmt.Errorf("invalid version marker %q", s)
}
