package dwnmodel

import "time"

// TimestampLayout is the ISO-8601 microsecond-precision layout spec §3
// mandates for messageTimestamp/dateCreated/dateExpires. It also happens
// to sort lexicographically in the same order as chronologically, which
// internal/messagestore relies on when encoding a date property as an
// index sort key.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp renders t in the wire/index format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a wire-format timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
