package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/christopherklint97/meetr/internal/summary"
)

const (
	// chartScaleHours is the daily total that fills a bar completely.
	chartScaleHours = 8.0
	chartWidth      = 32
)

// RenderSummary renders the period totals and the working-day bar chart.
func RenderSummary(r summary.Report) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Meeting Hours Summary"))
	sb.WriteString("\n")

	for _, p := range r.Periods {
		line := fmt.Sprintf("%s %s  %s  %s",
			labelStyle.Render(p.Label+":"),
			highlightStyle.Render(fmt.Sprintf("%6.2fh", p.Hours)),
			fmt.Sprintf("%-13s", meetingCount(p.Count)),
			dimStyle.Render(periodRange(p)),
		)
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if len(r.Days) > 0 {
		sb.WriteString("\n")
		sb.WriteString(subtitleStyle.Render(fmt.Sprintf("Next %d working days", len(r.Days))))
		sb.WriteString("\n")
		for _, d := range r.Days {
			sb.WriteString(fmt.Sprintf("%s %s %s\n",
				d.Date.Format("Mon 01/02"),
				renderBar(d.Hours),
				fmt.Sprintf("%.2fh", d.Hours),
			))
		}
	}

	if r.PatternCount > 0 {
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("Ignoring appointments matching %d pattern(s)", r.PatternCount)))
	}

	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

func meetingCount(n int) string {
	if n == 1 {
		return "(1 meeting)"
	}
	return fmt.Sprintf("(%d meetings)", n)
}

// periodRange formats a single-day period by its date and a week by its
// first and last day.
func periodRange(p summary.PeriodTotal) string {
	if !p.Week {
		return p.Window.From.Format("Monday, January 02")
	}
	return fmt.Sprintf("%s - %s", p.Window.From.Format("Jan 02"), p.Window.To.Format("Jan 02"))
}

// barColor picks the load colour: up to 3h is fine, up to 4h is busy.
func barColor(hours float64) lipgloss.Color {
	switch {
	case hours <= 3:
		return barGreen
	case hours <= 4:
		return barYellow
	default:
		return barRed
	}
}

// barCells scales hours to the chart width, capped at a full bar.
func barCells(hours float64, width int) int {
	if hours <= 0 {
		return 0
	}
	n := int(hours / chartScaleHours * float64(width))
	if n == 0 {
		n = 1
	}
	if n > width {
		n = width
	}
	return n
}

func renderBar(hours float64) string {
	n := barCells(hours, chartWidth)
	filled := lipgloss.NewStyle().Foreground(barColor(hours)).Render(strings.Repeat("█", n))
	return filled + dimStyle.Render(strings.Repeat("·", chartWidth-n))
}
