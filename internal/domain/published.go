package domain

import (
	"strings"
	"time"
)

var publishedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
}

// Zone abbreviations that really mean a zero offset.
var utcZoneNames = map[string]bool{"UTC": true, "GMT": true, "Z": true}

// Abbreviations the Danish feeds use. time.Parse knows them only when the host
// zone happens to define them.
var zoneOffsets = map[string]int{
	"CET":  1 * 60 * 60,
	"CEST": 2 * 60 * 60,
}

// ParsePublished tries the known feed date layouts and returns nil when none match.
// A zone abbreviation that resolves to no known offset counts as a miss.
func ParsePublished(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		name, offset := t.Zone()
		if offset == 0 && !utcZoneNames[name] {
			known, ok := zoneOffsets[name]
			if !ok {
				continue
			}
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
				time.FixedZone(name, known))
		}
		return &t
	}
	return nil
}
