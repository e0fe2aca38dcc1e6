// Package filter decides which calendar entries count as meetings.
//
// Exclusion rules run in a fixed order and the first match is reported, so
// diagnostics always name the same reason for the same entry. Ignore
// patterns use Go's RE2 syntax: matching is a case-sensitive search within
// the subject, and a pattern opts into case-insensitivity with (?i).
package filter

import (
	"time"

	"github.com/christopherklint97/meetr/internal/calendar"
)

// Reason explains why an entry was excluded. The zero value means included.
type Reason int

const (
	Included Reason = iota
	IgnoredByPattern
	AllDay
	Private
	OutOfOffice
	Cancelled
	Declined
	AlreadyStarted
)

// Reasons lists every exclusion reason in evaluation order.
var Reasons = []Reason{IgnoredByPattern, AllDay, Private, OutOfOffice, Cancelled, Declined, AlreadyStarted}

func (r Reason) String() string {
	switch r {
	case Included:
		return "included"
	case IgnoredByPattern:
		return "ignored pattern"
	case AllDay:
		return "all-day"
	case Private:
		return "private"
	case OutOfOffice:
		return "out of office"
	case Cancelled:
		return "cancelled"
	case Declined:
		return "declined"
	case AlreadyStarted:
		return "already started"
	}
	return "unknown"
}

// Excluded reports whether r is an exclusion.
func (r Reason) Excluded() bool {
	return r != Included
}

// Classify applies the structural and pattern rules to e.
func Classify(e calendar.Entry, patterns Patterns) Reason {
	switch {
	case patterns.Match(e.Subject):
		return IgnoredByPattern
	case e.IsAllDay:
		return AllDay
	case e.Sensitivity == calendar.SensitivityPrivate:
		return Private
	case e.BusyStatus == calendar.BusyOutOfOffice:
		return OutOfOffice
	case e.IsCancelled:
		return Cancelled
	case e.Response == calendar.ResponseDeclined:
		return Declined
	}
	return Included
}

// ClassifyUpcoming is Classify plus the AlreadyStarted rule relative to now.
// Meetings that already began still consumed time, so hour totals use
// Classify and only reschedule scans use this.
func ClassifyUpcoming(e calendar.Entry, patterns Patterns, now time.Time) Reason {
	if r := Classify(e, patterns); r.Excluded() {
		return r
	}
	if e.Start.Before(now) {
		return AlreadyStarted
	}
	return Included
}
