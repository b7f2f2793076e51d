package model

import "time"

// Effective windows are day-granular: a policy effective until 2024-03-01
// still applies for the whole of that day, regardless of clock time or zone
// on either side of the comparison. All window checks therefore truncate both
// operands to the UTC day first.

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// OnOrBefore reports whether a's day is the same as or earlier than b's.
func OnOrBefore(a, b time.Time) bool {
	return !Day(a).After(Day(b))
}

// OnOrAfter reports whether a's day is the same as or later than b's.
func OnOrAfter(a, b time.Time) bool {
	return !Day(a).Before(Day(b))
}
