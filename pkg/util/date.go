package util

import (
	"strconv"
	"time"
)

// msThreshold separates epoch seconds from epoch milliseconds. As seconds it is year 33658.
const msThreshold = 1e12

// ParseTime accepts RFC3339 (with or without fraction), epoch seconds or epoch
// milliseconds, the unit picked by magnitude. Non-positive numbers are rejected.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n >= msThreshold {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}

// NowMillis returns the current time in epoch milliseconds.
func NowMillis() int64 { return time.Now().UnixMilli() }

// ISOTime formats t as RFC3339 with milliseconds in UTC.
func ISOTime(t time.Time) string { return t.UTC().Format("2006-01-02T15:04:05.000Z07:00") }
