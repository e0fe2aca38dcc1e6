package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//meetr//test//EN
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250101T000000Z
DTSTART:20251027T090000Z
DTEND:20251027T093000Z
RRULE:FREQ=DAILY;COUNT=5
SUMMARY:Standup
ORGANIZER;CN=Alice:mailto:alice@example.com
ATTENDEE;PARTSTAT=ACCEPTED:mailto:me@example.com
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250101T000000Z
RECURRENCE-ID:20251029T090000Z
DTSTART:20251029T100000Z
DTEND:20251029T103000Z
SUMMARY:Standup (moved)
ORGANIZER;CN=Alice:mailto:alice@example.com
END:VEVENT
BEGIN:VEVENT
UID:review@example.com
DTSTAMP:20250101T000000Z
DTSTART:20251028T140000Z
DTEND:20251028T150000Z
SUMMARY:Design review
STATUS:CANCELLED
CLASS:PRIVATE
X-MICROSOFT-CDO-BUSYSTATUS:OOF
ORGANIZER;CN=Bob:mailto:bob@example.com
ATTENDEE;PARTSTAT=DECLINED:mailto:me@example.com
END:VEVENT
BEGIN:VEVENT
UID:holiday@example.com
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20251031
DTEND;VALUE=DATE:20251101
SUMMARY:Holiday
TRANSP:TRANSPARENT
END:VEVENT
BEGIN:VEVENT
UID:later@example.com
DTSTAMP:20250101T000000Z
DTSTART:20251215T090000Z
DTEND:20251215T100000Z
SUMMARY:Out of range
END:VEVENT
END:VCALENDAR
`

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(testFeed, "\n", "\r\n")), 0644); err != nil {
		t.Fatalf("writing feed: %v", err)
	}
	return path
}

func fetchWeek(t *testing.T, src *ICSSource) []Entry {
	t.Helper()
	from := time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	entries, err := src.FetchEntries(context.Background(), from, to)
	if err != nil {
		t.Fatalf("FetchEntries: %v", err)
	}
	return entries
}

func bySubject(entries []Entry) map[string][]Entry {
	m := make(map[string][]Entry)
	for _, e := range entries {
		m[e.Subject] = append(m[e.Subject], e)
	}
	return m
}

func TestICSSource_ExpandsRecurrenceWithOverride(t *testing.T) {
	src := NewICSSource(writeFeed(t), time.UTC, "me@example.com", nil)
	got := bySubject(fetchWeek(t, src))

	if n := len(got["Standup"]); n != 4 {
		t.Fatalf("expected 4 generated standups, got %d", n)
	}
	moved := got["Standup (moved)"]
	if len(moved) != 1 {
		t.Fatalf("expected the moved instance once, got %d", len(moved))
	}
	if moved[0].Start.Hour() != 10 {
		t.Errorf("moved instance start = %v, want 10:00", moved[0].Start)
	}
	if moved[0].StableID != "standup@example.com|2025-10-29T09:00:00Z" {
		t.Errorf("moved instance StableID = %q, want the original occurrence", moved[0].StableID)
	}
	for _, e := range got["Standup"] {
		if e.Start.Day() == 29 {
			t.Errorf("overridden occurrence still generated: %v", e.Start)
		}
		if e.Duration() != 30*time.Minute {
			t.Errorf("occurrence duration = %v, want 30m", e.Duration())
		}
		if want := "standup@example.com|" + e.Start.UTC().Format(time.RFC3339); e.StableID != want {
			t.Errorf("StableID = %q, want %q", e.StableID, want)
		}
		if e.Response != ResponseAccepted {
			t.Errorf("Response = %v, want accepted", e.Response)
		}
		if e.OrganizerName != "Alice" || e.OrganizerEmail != "alice@example.com" {
			t.Errorf("organizer = %q <%s>", e.OrganizerName, e.OrganizerEmail)
		}
	}
	if _, ok := got["Out of range"]; ok {
		t.Error("entry outside the requested range was returned")
	}
}

func TestICSSource_MapsStatusFields(t *testing.T) {
	src := NewICSSource(writeFeed(t), time.UTC, "me@example.com", nil)
	got := bySubject(fetchWeek(t, src))

	review := got["Design review"]
	if len(review) != 1 {
		t.Fatalf("expected one review, got %d", len(review))
	}
	r := review[0]
	if !r.IsCancelled {
		t.Error("expected IsCancelled")
	}
	if r.Sensitivity != SensitivityPrivate {
		t.Errorf("Sensitivity = %v, want private", r.Sensitivity)
	}
	if r.BusyStatus != BusyOutOfOffice {
		t.Errorf("BusyStatus = %v, want out of office", r.BusyStatus)
	}
	if r.Response != ResponseDeclined {
		t.Errorf("Response = %v, want declined", r.Response)
	}

	holiday := got["Holiday"]
	if len(holiday) != 1 || !holiday[0].IsAllDay {
		t.Fatalf("expected one all-day holiday, got %+v", holiday)
	}
	if holiday[0].BusyStatus != BusyFree {
		t.Errorf("transparent entry BusyStatus = %v, want free", holiday[0].BusyStatus)
	}
}

func TestICSSource_NoUserEmailLeavesResponseUnknown(t *testing.T) {
	src := NewICSSource(writeFeed(t), time.UTC, "", nil)
	for _, e := range fetchWeek(t, src) {
		if e.Response != ResponseNone {
			t.Errorf("%s: Response = %v, want none", e.Subject, e.Response)
		}
	}
}

func TestICSSource_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(strings.ReplaceAll(testFeed, "\n", "\r\n")))
	}))
	defer srv.Close()

	src := NewICSSource(srv.URL, time.UTC, "", nil)
	if n := len(fetchWeek(t, src)); n != 7 {
		t.Errorf("expected 7 entries over HTTP, got %d", n)
	}
}

func TestICSSource_HTTPErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewICSSource(srv.URL, time.UTC, "", nil)
	_, err := src.FetchEntries(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("expected an error for a 404 feed")
	}
}

func TestStableIDOf(t *testing.T) {
	if got := StableIDOf("uid", "local"); got != "uid" {
		t.Errorf("got %q, want uid", got)
	}
	if got := StableIDOf("", "local"); got != "local" {
		t.Errorf("got %q, want local", got)
	}
	if got := StableIDOf("", ""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
