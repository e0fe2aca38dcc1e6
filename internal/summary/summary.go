package summary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/christopherklint97/meetr/internal/aggregate"
	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/filter"
	"github.com/christopherklint97/meetr/internal/fullhour"
	"github.com/christopherklint97/meetr/internal/window"
)

const (
	// ChartDays is the number of working days shown in the bar chart.
	ChartDays = 5
	// DefaultHorizonDays bounds both the fetch and the full-hour scan.
	DefaultHorizonDays = 14
	// DefaultMaxCandidates caps how many full-hour meetings are offered.
	DefaultMaxCandidates = 10
)

// Period is a labelled aggregation window. Week marks Monday-to-Friday
// periods.
type Period struct {
	Label  string
	Window window.Window
	Week   bool
}

// Periods holds every window a run needs, all derived from one "now".
type Periods struct {
	Now            time.Time
	Today          Period
	NextWorkingDay Period
	ThisWeek       Period
	NextWeek       Period
	Days           []window.Window
	Fetch          window.Window
	Scan           window.Window
}

// All returns the four summary periods in display order.
func (p Periods) All() []Period {
	return []Period{p.Today, p.NextWorkingDay, p.ThisWeek, p.NextWeek}
}

// NewPeriods computes the run windows for now. horizonDays below one falls
// back to DefaultHorizonDays.
func NewPeriods(now time.Time, horizonDays int) Periods {
	if horizonDays < 1 {
		horizonDays = DefaultHorizonDays
	}
	today := window.StartOfDay(now)
	nwd := window.NextWorkingDay(now)
	dayAfter := window.NextWorkingDay(nwd)
	thisWeek := window.WeekdayBounds(now)
	nextWeek := window.WeekdayBounds(window.AddDays(thisWeek.Monday, 7))

	p := Periods{
		Now:            now,
		Today:          Period{Label: "Today", Window: window.Window{From: today, To: nwd}},
		NextWorkingDay: Period{Label: "Next Working Day", Window: window.Window{From: nwd, To: dayAfter}},
		ThisWeek:       Period{Label: "This Week", Window: thisWeek.Window(), Week: true},
		NextWeek:       Period{Label: "Next Week", Window: nextWeek.Window(), Week: true},
	}

	for _, d := range window.WorkingDays(today, ChartDays) {
		p.Days = append(p.Days, window.Day(d))
	}

	horizon := window.AddDays(today, horizonDays)
	fetchEnd := nextWeek.FridayEnd
	if horizon.After(fetchEnd) {
		fetchEnd = horizon
	}
	// One extra day so entries on the last day are never cut off.
	p.Fetch = window.Window{From: today, To: fetchEnd.Add(24 * time.Hour)}
	p.Scan = window.Window{From: now, To: horizon}
	return p
}

// PeriodTotal is the aggregation result for one summary period.
type PeriodTotal struct {
	Period
	aggregate.Result
}

// DayTotal is the aggregation result for one chart day.
type DayTotal struct {
	Date time.Time
	aggregate.Result
}

// Report is the meeting-hour summary of a single snapshot.
type Report struct {
	Generated    time.Time
	Periods      []PeriodTotal
	Days         []DayTotal
	PatternCount int
}

// Build aggregates entries over every period and chart day.
func Build(entries []calendar.Entry, p Periods, patterns filter.Patterns, logger *slog.Logger) Report {
	r := Report{Generated: p.Now, PatternCount: len(patterns)}
	for _, period := range p.All() {
		res := aggregate.Aggregate(entries, period.Window, patterns, aggregate.WithLogger(logger, period.Label))
		r.Periods = append(r.Periods, PeriodTotal{Period: period, Result: res})
	}
	for i, d := range p.Days {
		label := fmt.Sprintf("Working Day %d - %s", i+1, d.From.Format("2006-01-02"))
		res := aggregate.Aggregate(entries, d, patterns, aggregate.WithLogger(logger, label))
		r.Days = append(r.Days, DayTotal{Date: d.From, Result: res})
	}
	return r
}

// Snapshot is everything a run derives from one fetch.
type Snapshot struct {
	Periods Periods
	Report  Report
	Scan    fullhour.Result
	Entries int
}

// Runner fetches a calendar snapshot and evaluates it.
type Runner struct {
	Source      calendar.Source
	Patterns    filter.Patterns
	OptOuts     fullhour.OptOuts
	MaxCount    int
	HorizonDays int
	Logger      *slog.Logger
}

// Run fetches entries for the windows derived from now, then builds the
// report and scans for full-hour meetings. A fetch failure is returned as
// is; nothing else in a run can fail.
func (r *Runner) Run(ctx context.Context, now time.Time) (*Snapshot, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := NewPeriods(now, r.HorizonDays)
	logger.Info("fetching calendar entries", "from", p.Fetch.From, "to", p.Fetch.To)

	entries, err := r.Source.FetchEntries(ctx, p.Fetch.From, p.Fetch.To)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar entries: %w", err)
	}
	logger.Info("calendar entries fetched", "count", len(entries))

	report := Build(entries, p, r.Patterns, logger)

	maxCount := r.MaxCount
	if maxCount == 0 {
		maxCount = DefaultMaxCandidates
	}
	scan := fullhour.NewScanner(logger).Scan(entries, p.Scan, r.Patterns, r.OptOuts, maxCount, now)

	return &Snapshot{
		Periods: p,
		Report:  report,
		Scan:    scan,
		Entries: len(entries),
	}, nil
}
