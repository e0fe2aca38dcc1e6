// Package window holds the calendar-grid arithmetic used to bucket meetings:
// work-week bounds, working-day stepping and half-open time windows.
//
// All day stepping goes through time.Date so that results stay on calendar
// dates regardless of DST shifts in the reference location.
package window

import (
	"math"
	"time"
)

// Window is the half-open interval [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether From <= t < To.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Day returns the window covering the calendar day of d in d's location.
func Day(d time.Time) Window {
	start := StartOfDay(d)
	return Window{From: start, To: AddDays(start, 1)}
}

// Bounds is a Monday-to-Friday work week.
type Bounds struct {
	Monday    time.Time // 00:00:00
	FridayEnd time.Time // 23:59:59
}

// Window returns [Monday, FridayEnd).
func (b Bounds) Window() Window {
	return Window{From: b.Monday, To: b.FridayEnd}
}

// WeekdayBounds returns the work week containing ref. Saturdays and Sundays
// resolve to the upcoming week, never the one just ended.
func WeekdayBounds(ref time.Time) Bounds {
	var offset int
	switch ref.Weekday() {
	case time.Sunday:
		offset = 1
	case time.Saturday:
		offset = 2
	default:
		offset = -int(ref.Weekday() - time.Monday)
	}

	monday := AddDays(StartOfDay(ref), offset)
	friday := AddDays(monday, 4)
	return Bounds{
		Monday:    monday,
		FridayEnd: time.Date(friday.Year(), friday.Month(), friday.Day(), 23, 59, 59, 0, friday.Location()),
	}
}

// NextWorkingDay returns midnight of the first Monday-Friday date after ref.
func NextWorkingDay(ref time.Time) time.Time {
	next := AddDays(StartOfDay(ref), 1)
	switch next.Weekday() {
	case time.Saturday:
		return AddDays(next, 2)
	case time.Sunday:
		return AddDays(next, 1)
	}
	return next
}

// IsWorkingDay reports whether t falls on Monday through Friday.
func IsWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// WorkingDays returns midnight of the next n working days, starting with
// from's own date when that is a working day.
func WorkingDays(from time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := StartOfDay(from)
	for len(days) < n {
		if IsWorkingDay(d) {
			days = append(days, d)
		}
		d = AddDays(d, 1)
	}
	return days
}

// DurationHours returns end-start in hours rounded to two decimals, half
// away from zero. A negative span counts as zero.
func DurationHours(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return RoundHours(d.Hours())
}

// RoundHours rounds h to two decimals, half away from zero.
func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// StartOfDay returns midnight of t's date in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days, keeping the wall-clock time.
func AddDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
