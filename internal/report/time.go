package report

import "time"

// FormatTimestamp returns the current time formatted by FormatTime.
func FormatTimestamp() string {
	return FormatTime(time.Now())
}

// FormatTime returns t as a RFC3339 UTC timestamp with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
