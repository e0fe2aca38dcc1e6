package aggregate

import (
	"io"
	"log/slog"

	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/filter"
	"github.com/christopherklint97/meetr/internal/window"
)

// Result is the meeting total for one window.
type Result struct {
	Hours    float64
	Count    int
	Excluded map[filter.Reason]int
}

// ExcludedTotal returns the number of entries in the window that were
// filtered out.
func (r Result) ExcludedTotal() int {
	n := 0
	for _, c := range r.Excluded {
		n += c
	}
	return n
}

type options struct {
	perEntry bool
	logger   *slog.Logger
	label    string
}

// Option configures Aggregate.
type Option func(*options)

// WithPerEntryRounding rounds each duration before summing instead of
// rounding the total once. Several 20-minute meetings show the difference.
func WithPerEntryRounding() Option {
	return func(o *options) { o.perEntry = true }
}

// WithLogger logs every in-window entry and its decision at debug level,
// and the window total at info level under label.
func WithLogger(logger *slog.Logger, label string) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
		o.label = label
	}
}

// Aggregate sums the durations of included entries starting in w.
// Entries that already started still count; only the pattern and
// structural rules apply.
func Aggregate(entries []calendar.Entry, w window.Window, patterns filter.Patterns, opts ...Option) Result {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	res := Result{Excluded: make(map[filter.Reason]int)}
	var total float64

	for _, e := range entries {
		if !w.Contains(e.Start) {
			continue
		}

		if reason := filter.Classify(e, patterns); reason.Excluded() {
			res.Excluded[reason]++
			o.logger.Debug("entry excluded",
				"period", o.label,
				"subject", e.Subject,
				"start", e.Start.Format("2006-01-02 15:04"),
				"reason", reason.String(),
			)
			continue
		}

		hours := e.End.Sub(e.Start).Hours()
		if hours < 0 {
			hours = 0
		}
		if o.perEntry {
			hours = window.RoundHours(hours)
		}
		total += hours
		res.Count++
		o.logger.Debug("entry included",
			"period", o.label,
			"subject", e.Subject,
			"start", e.Start.Format("2006-01-02 15:04"),
			"hours", window.DurationHours(e.Start, e.End),
		)
	}

	res.Hours = window.RoundHours(total)
	o.logger.Info("period total",
		"period", o.label,
		"from", w.From.Format("2006-01-02 15:04"),
		"to", w.To.Format("2006-01-02 15:04"),
		"hours", res.Hours,
		"count", res.Count,
		"excluded", res.ExcludedTotal(),
	)
	return res
}
