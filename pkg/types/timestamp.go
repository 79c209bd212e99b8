package types

import (
	"fmt"
	"strings"
	"time"
)

// offsetLayouts carry their own zone ("Z" or "+02:00").
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

// naiveLayouts carry no zone and are interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatTimestamp renders t in the canonical stored form (UTC, RFC3339, "Z" suffix).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp accepts the three encodings found in stored attributes:
// UTC with a "Z" suffix, an explicit offset, or a naive timestamp which is
// assumed to be UTC. The result is always in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("types: empty timestamp")
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("types: unrecognised timestamp %q", s)
}
