package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/summary"
)

func TestBarColor(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, string(barGreen)},
		{3, string(barGreen)},
		{3.01, string(barYellow)},
		{4, string(barYellow)},
		{4.5, string(barRed)},
	}
	for _, tt := range tests {
		if got := string(barColor(tt.hours)); got != tt.want {
			t.Errorf("barColor(%v) = %s, want %s", tt.hours, got, tt.want)
		}
	}
}

func TestBarCells(t *testing.T) {
	tests := []struct {
		hours float64
		want  int
	}{
		{0, 0},
		{0.1, 1},
		{4, 16},
		{8, 32},
		{12, 32},
	}
	for _, tt := range tests {
		if got := barCells(tt.hours, 32); got != tt.want {
			t.Errorf("barCells(%v) = %d, want %d", tt.hours, got, tt.want)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	start := time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC)
	entries := []calendar.Entry{{Subject: "Design", Start: start, End: start.Add(90 * time.Minute)}}

	report := summary.Build(entries, summary.NewPeriods(now, 14), nil, nil)
	out := RenderSummary(report)

	for _, want := range []string{
		"Meeting Hours Summary",
		"Today:",
		"Next Working Day:",
		"1.50h",
		"(1 meeting)",
		"(0 meetings)",
		"Wednesday, January 15",
		"Jan 13 - Jan 17",
		"Jan 20 - Jan 24",
		"Wed 01/15",
		"Tue 01/21",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pattern") {
		t.Error("pattern note shown without patterns")
	}
}
