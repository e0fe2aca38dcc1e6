package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// ICSSource reads entries from an iCalendar feed, either a URL or a local file.
// Instances of a recurring event get StableID "UID|<original start, UTC RFC3339>".
type ICSSource struct {
	Source string

	// Location is the zone entries are converted to. Defaults to time.Local.
	Location *time.Location

	// UserEmail identifies the calendar owner among ATTENDEE lines so that
	// declined invitations can be recognised.
	UserEmail string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewICSSource creates an ICSSource for the given URL or file path.
func NewICSSource(source string, loc *time.Location, userEmail string, logger *slog.Logger) *ICSSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if loc == nil {
		loc = time.Local
	}
	return &ICSSource{
		Source:    source,
		Location:  loc,
		UserEmail: userEmail,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Logger: logger,
	}
}

// FetchEntries retrieves and parses the feed, expanding recurring events,
// and returns entries whose start lies in [from, to).
func (s *ICSSource) FetchEntries(ctx context.Context, from, to time.Time) ([]Entry, error) {
	r, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries, err := s.decode(r, from, to)
	if err != nil {
		return nil, err
	}
	s.Logger.Debug("ics calendar entries fetched", "source", s.Source, "count", len(entries))
	return entries, nil
}

func (s *ICSSource) open(ctx context.Context) (io.ReadCloser, error) {
	if strings.HasPrefix(s.Source, "http://") || strings.HasPrefix(s.Source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Source, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		client := s.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching calendar: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("calendar fetch returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(s.Source)
	if err != nil {
		return nil, fmt.Errorf("opening calendar file: %w", err)
	}
	return f, nil
}

func (s *ICSSource) decode(r io.Reader, from, to time.Time) ([]Entry, error) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	dec := ical.NewDecoder(r)
	var events []ical.Event
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}
		events = append(events, cal.Events()...)
	}

	// Instances moved or edited individually carry a RECURRENCE-ID and
	// replace the generated occurrence with the same original start.
	overridden := make(map[string]bool)
	for _, ev := range events {
		if rid := ev.Props.Get(ical.PropRecurrenceID); rid != nil {
			t, err := rid.DateTime(loc)
			if err != nil {
				continue
			}
			overridden[occurrenceID(uidOf(ev), t)] = true
		}
	}

	var entries []Entry
	for _, ev := range events {
		start, err := ev.DateTimeStart(loc)
		if err != nil {
			s.Logger.Debug("skipping event with unparseable start", "uid", uidOf(ev), "error", err)
			continue
		}
		end, err := ev.DateTimeEnd(loc)
		if err != nil {
			s.Logger.Debug("skipping event with unparseable end", "uid", uidOf(ev), "error", err)
			continue
		}
		base := s.mapEvent(ev, start, end)

		set, err := ev.RecurrenceSet(loc)
		if err != nil {
			s.Logger.Warn("skipping event with invalid recurrence", "uid", base.StableID, "error", err)
			continue
		}
		if rid := ev.Props.Get(ical.PropRecurrenceID); rid != nil {
			if t, err := rid.DateTime(loc); err == nil {
				base.StableID = occurrenceID(base.StableID, t)
			}
		}
		if set == nil || ev.Props.Get(ical.PropRecurrenceID) != nil {
			if inRange(start, from, to) {
				entries = append(entries, base)
			}
			continue
		}

		for _, occStart := range occurrences(set, from, to) {
			id := occurrenceID(base.StableID, occStart)
			if overridden[id] {
				continue
			}
			occ := base
			occ.StableID = id
			occ.Start = occStart.In(loc)
			occ.End = occ.Start.Add(base.Duration())
			entries = append(entries, occ)
		}
	}

	return entries, nil
}

// occurrences lists recurrence instances starting in [from, to).
func occurrences(set *rrule.Set, from, to time.Time) []time.Time {
	var out []time.Time
	for _, t := range set.Between(from, to, true) {
		if inRange(t, from, to) {
			out = append(out, t)
		}
	}
	return out
}

func (s *ICSSource) mapEvent(ev ical.Event, start, end time.Time) Entry {
	e := Entry{
		Subject:  propText(ev, ical.PropSummary),
		Start:    start.In(s.Location),
		End:      end.In(s.Location),
		StableID: uidOf(ev),
	}

	if p := ev.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
		e.IsAllDay = true
	}

	switch strings.ToUpper(propText(ev, ical.PropStatus)) {
	case "CANCELLED":
		e.IsCancelled = true
	}

	switch strings.ToUpper(propText(ev, ical.PropClass)) {
	case "PRIVATE":
		e.Sensitivity = SensitivityPrivate
	case "CONFIDENTIAL":
		e.Sensitivity = SensitivityConfidential
	}

	e.BusyStatus = busyStatusOf(ev)

	if org := ev.Props.Get(ical.PropOrganizer); org != nil {
		e.OrganizerName = org.Params.Get("CN")
		e.OrganizerEmail = mailAddress(org.Value)
	}

	e.Response = s.responseOf(ev, e.OrganizerEmail)
	return e
}

func busyStatusOf(ev ical.Event) BusyStatus {
	switch strings.ToUpper(propText(ev, "X-MICROSOFT-CDO-BUSYSTATUS")) {
	case "FREE":
		return BusyFree
	case "TENTATIVE":
		return BusyTentative
	case "BUSY":
		return BusyBusy
	case "OOF":
		return BusyOutOfOffice
	case "WORKINGELSEWHERE":
		return BusyWorkingElsewhere
	}
	switch strings.ToUpper(propText(ev, ical.PropTransparency)) {
	case "TRANSPARENT":
		return BusyFree
	case "OPAQUE":
		return BusyBusy
	}
	return BusyUnknown
}

func (s *ICSSource) responseOf(ev ical.Event, organizerEmail string) ResponseStatus {
	if s.UserEmail == "" {
		return ResponseNone
	}
	if strings.EqualFold(organizerEmail, s.UserEmail) {
		return ResponseOrganizer
	}
	for _, att := range ev.Props.Values(ical.PropAttendee) {
		if !strings.EqualFold(mailAddress(att.Value), s.UserEmail) {
			continue
		}
		switch strings.ToUpper(att.Params.Get("PARTSTAT")) {
		case "ACCEPTED":
			return ResponseAccepted
		case "DECLINED":
			return ResponseDeclined
		case "TENTATIVE":
			return ResponseTentative
		case "NEEDS-ACTION":
			return ResponseNotResponded
		}
	}
	return ResponseNone
}

func propText(ev ical.Event, name string) string {
	p := ev.Props.Get(name)
	if p == nil {
		return ""
	}
	if v, err := p.Text(); err == nil {
		return v
	}
	return p.Value
}

func uidOf(ev ical.Event) string {
	return propText(ev, ical.PropUID)
}

func mailAddress(v string) string {
	if len(v) > 7 && strings.EqualFold(v[:7], "mailto:") {
		return v[7:]
	}
	return v
}

// occurrenceID identifies one instance of a recurring series by its UID
// and original start, so opting out of one instance leaves the rest.
func occurrenceID(uid string, start time.Time) string {
	if uid == "" {
		return ""
	}
	return uid + "|" + start.UTC().Format(time.RFC3339)
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
