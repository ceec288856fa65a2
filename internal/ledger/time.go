package ledger

import (
	"strings"
	"time"
)

// Timestamps persist as UTC ISO-8601 text with second precision and a
// trailing Z, so lexicographic order matches chronological order.
const timeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t in the store's persisted timestamp form.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

// ParseTime reads a persisted timestamp. It tolerates a missing Z and
// fractional seconds from hand-edited or imported data.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, "ZZ") {
		s = s[:len(s)-1]
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func nowZ() string {
	return FormatTime(time.Now())
}

// parseTimeOrZero is for scan paths where a bad stored value should not
// fail the whole query.
func parseTimeOrZero(s string) time.Time {
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
