// Package domain provides the date rules of approvals, suspensions and
// prolongations. It has no database or transport dependency.
package domain

import (
	"time"
	_ "time/tzdata"
)

// Clock returns the current instant. Services take a Clock so tests can pin "today".
type Clock func() time.Time

var paris = mustLoadParis()

func mustLoadParis() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Date builds a civil date at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the time of day of t, keeping the calendar day of t's location.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Today returns the current civil date in France.
func Today(clock Clock) time.Time {
	if clock == nil {
		clock = time.Now
	}
	return DateOf(clock().In(paris))
}

// DaysBetween returns b - a in whole days.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// AddDays shifts a civil date by n days.
func AddDays(t time.Time, n int) time.Time {
	return DateOf(t).AddDate(0, 0, n)
}

// AddMonths shifts a civil date by n months, clamping to the last day of the
// target month: 2024-03-31 minus one month is 2024-02-29.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := DateOf(t).Date()
	first := Date(y, m, 1).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	return Date(first.Year(), first.Month(), min(d, last))
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// inRange reports whether start <= day <= end.
func inRange(day, start, end time.Time) bool {
	return !day.Before(start) && !day.After(end)
}
