package grouping

import (
	"fmt"
	"strings"
	"time"
)

// KeyTimeLayout formats the minute-floored TCA inside an event key.
const KeyTimeLayout = "2006-01-02T15:04:05"

var zonedLayouts = []string{ //nolint:gochecknoglobals // read-only
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
}

// Fractional seconds are optional for these layouts when parsing.
var localLayouts = []string{ //nolint:gochecknoglobals // read-only
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses the timestamp shapes seen in upstream feeds. Input
// without a zone is taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrTimestamp)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
}

// EventKey builds "{primary}_{secondary}_{tca floored to the minute}".
func EventKey(primaryID, secondaryID string, tca time.Time) string {
	return primaryID + "_" + secondaryID + "_" + tca.Truncate(time.Minute).Format(KeyTimeLayout)
}

// rawEventKey is used when TCA cannot be parsed.
func rawEventKey(primaryID, secondaryID, tcaRaw string) string {
	return primaryID + "_" + secondaryID + "_" + tcaRaw
}
