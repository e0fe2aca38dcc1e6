// Package fullhour finds upcoming meetings that start exactly on the hour,
// the candidates for a request to move them to five past.
package fullhour

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/filter"
	"github.com/christopherklint97/meetr/internal/window"
)

// SkipReason extends filter.Reason with the scanner's own skip causes.
type SkipReason string

const (
	SkipNotFullHour       SkipReason = "not full hour"
	SkipPreviouslyIgnored SkipReason = "previously ignored"
)

// Candidate is a meeting eligible for a reschedule request.
type Candidate struct {
	Entry      calendar.Entry
	LocalStart time.Time
}

// NewStart is the proposed start, five minutes later.
func (c Candidate) NewStart() time.Time {
	return c.LocalStart.Add(5 * time.Minute)
}

// Result is the ordered candidate list plus skip diagnostics.
type Result struct {
	Candidates []Candidate
	Skipped    map[string]int
}

// OptOuts is the set of stable identifiers never to offer again.
type OptOuts interface {
	Has(id string) bool
}

// Scanner holds the logger used for per-entry diagnostics.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner. A nil logger discards output.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scanner{logger: logger}
}

// Scan returns at most maxCount entries starting in w on an exact clock
// hour, not yet started at now, passing every filter rule, and not opted
// out. Results are ordered by start; equal starts keep input order.
//
// Entries without a StableID cannot be matched against optedOut and are
// therefore offered on every scan.
func (s *Scanner) Scan(entries []calendar.Entry, w window.Window, patterns filter.Patterns, optedOut OptOuts, maxCount int, now time.Time) Result {
	res := Result{Skipped: make(map[string]int)}
	if maxCount <= 0 {
		return res
	}

	var found []Candidate
	for _, e := range entries {
		if !w.Contains(e.Start) {
			continue
		}

		if reason := filter.ClassifyUpcoming(e, patterns, now); reason.Excluded() {
			res.Skipped[reason.String()]++
			continue
		}

		if !IsFullHour(e.Start) {
			res.Skipped[string(SkipNotFullHour)]++
			continue
		}

		if e.StableID != "" && optedOut != nil && optedOut.Has(e.StableID) {
			res.Skipped[string(SkipPreviouslyIgnored)]++
			s.logger.Info("skipped previously ignored meeting",
				"subject", e.Subject,
				"start", e.Start.Format("2006-01-02 15:04"),
			)
			continue
		}

		found = append(found, Candidate{Entry: e, LocalStart: e.Start})
		s.logger.Info("found full-hour meeting",
			"subject", e.Subject,
			"start", e.Start.Format("2006-01-02 15:04"),
			"organizer", e.OrganizerName,
		)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].LocalStart.Before(found[j].LocalStart)
	})
	if len(found) > maxCount {
		found = found[:maxCount]
	}
	res.Candidates = found

	s.logger.Info("full-hour scan complete", "found", len(found), "skipped", res.Skipped)
	return res
}

// IsFullHour reports whether t has zero minutes and seconds in its own zone.
func IsFullHour(t time.Time) bool {
	return t.Minute() == 0 && t.Second() == 0
}
