package normalize

import (
	"strconv"
	"strings"
	"time"
)

const (
	epochMillisThreshold  = 1_000_000_000_000
	epochSecondsThreshold = 1_000_000_000
)

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseReset interprets a reset header value. Integers above 10^12 are epoch
// milliseconds, above 10^9 epoch seconds, anything smaller is seconds from
// now. Other values are parsed as ISO-8601 (no zone means UTC). Unparseable
// input yields nil without error.
func ParseReset(raw string, now time.Time) (*int64, *string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}

	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		var epoch int64
		switch {
		case n > epochMillisThreshold:
			epoch = n / 1000
		case n > epochSecondsThreshold:
			epoch = n
		default:
			epoch = now.Unix() + n
		}
		return &epoch, ptr(EpochISO(epoch))
	}

	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		epoch := t.Unix()
		return &epoch, ptr(t.UTC().Format(time.RFC3339Nano))
	}
	return nil, nil
}

// EpochISO renders epoch seconds as an RFC 3339 UTC timestamp.
func EpochISO(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}
