package calendar

import (
	"context"
	"time"
)

// Sensitivity is the privacy marker of an entry.
type Sensitivity int

const (
	SensitivityNormal Sensitivity = iota
	SensitivityPersonal
	SensitivityPrivate
	SensitivityConfidential
)

// BusyStatus is how the entry shows on the owner's free/busy view.
type BusyStatus int

const (
	BusyUnknown BusyStatus = iota
	BusyFree
	BusyTentative
	BusyBusy
	BusyOutOfOffice
	BusyWorkingElsewhere
)

// ResponseStatus is the owner's reply to a meeting invitation.
type ResponseStatus int

const (
	ResponseNone ResponseStatus = iota
	ResponseOrganizer
	ResponseAccepted
	ResponseTentative
	ResponseDeclined
	ResponseNotResponded
)

// Entry is a single calendar item as seen by the aggregation engine.
// Adapters fill every field; anything the store does not report stays at
// its zero value, which never causes an exclusion.
type Entry struct {
	Subject        string
	Start          time.Time
	End            time.Time
	IsAllDay       bool
	Sensitivity    Sensitivity
	BusyStatus     BusyStatus
	IsCancelled    bool
	Response       ResponseStatus
	OrganizerName  string
	OrganizerEmail string

	// StableID survives edits to the entry and differs between instances of
	// a recurring series. Empty when the store has none.
	StableID string
}

// Duration returns End-Start.
func (e Entry) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Source fetches calendar entries whose start lies in [from, to).
type Source interface {
	FetchEntries(ctx context.Context, from, to time.Time) ([]Entry, error)
}

// StableIDOf prefers the global iCal UID and falls back to the store's
// local identifier.
func StableIDOf(icalUID, localID string) string {
	if icalUID != "" {
		return icalUID
	}
	return localID
}
