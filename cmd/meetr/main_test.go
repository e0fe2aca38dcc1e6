package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/draft"
	"github.com/christopherklint97/meetr/internal/fullhour"
	"github.com/christopherklint97/meetr/internal/optout"
	"github.com/christopherklint97/meetr/internal/store"
)

func TestParseReference(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC) // Wednesday

	got, err := parseReference("", now)
	if err != nil || !got.Equal(now) {
		t.Errorf("empty = %v, %v", got, err)
	}

	got, err = parseReference("2025-01-20", now)
	if err != nil || !got.Equal(time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("iso date = %v, %v", got, err)
	}

	got, err = parseReference("tomorrow", now)
	if err != nil {
		t.Fatalf("tomorrow: %v", err)
	}
	if got.Day() != 16 || got.Month() != time.January {
		t.Errorf("tomorrow = %v", got)
	}
}

type stubDrafter struct {
	err error
}

func (s stubDrafter) CreateDraft(ctx context.Context, msg draft.Message) (string, error) {
	return "AAMk-1", s.err
}

func testActions(t *testing.T, d draft.Drafter) (*rescheduleActions, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return &rescheduleActions{
		drafter: d,
		optouts: optout.NewStore(filepath.Join(t.TempDir(), "ignored_full_hour_appointments.txt")),
		db:      db,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, db
}

func testCandidate(id string) fullhour.Candidate {
	start := time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)
	return fullhour.Candidate{
		Entry: calendar.Entry{
			Subject:        "Weekly sync",
			Start:          start,
			End:            start.Add(time.Hour),
			OrganizerEmail: "alice@example.com",
			StableID:       id,
		},
		LocalStart: start,
	}
}

func TestRescheduleActions_CreateDraftRecordsHistory(t *testing.T) {
	a, db := testActions(t, stubDrafter{})
	c := testCandidate("uid-1")

	id, err := a.CreateDraft(context.Background(), c, draft.Message{To: "alice@example.com", Subject: "s", Body: "b"})
	if err != nil || id != "AAMk-1" {
		t.Fatalf("CreateDraft = %q, %v", id, err)
	}
	has, err := db.HasDraft("uid-1", c.LocalStart)
	if err != nil || !has {
		t.Errorf("draft not recorded: %v, %v", has, err)
	}
}

func TestRescheduleActions_Errors(t *testing.T) {
	a, _ := testActions(t, nil)
	if _, err := a.CreateDraft(context.Background(), testCandidate("x"), draft.Message{To: "a@b"}); !errors.Is(err, errNoDrafter) {
		t.Errorf("err = %v, want errNoDrafter", err)
	}

	failing, db := testActions(t, stubDrafter{err: errors.New("denied")})
	if _, err := failing.CreateDraft(context.Background(), testCandidate("x"), draft.Message{To: "a@b"}); err == nil {
		t.Error("expected drafter error")
	}
	if has, _ := db.HasDraft("x", testCandidate("x").LocalStart); has {
		t.Error("failed drafts must not be recorded")
	}
}

func TestRescheduleActions_OptOut(t *testing.T) {
	a, _ := testActions(t, nil)

	if err := a.OptOut(testCandidate("uid-9")); err != nil {
		t.Fatalf("OptOut: %v", err)
	}
	set, err := a.optouts.Load()
	if err != nil || !set.Has("uid-9") {
		t.Errorf("opt-out not persisted: %v, %v", set, err)
	}

	if err := a.OptOut(testCandidate("")); err == nil {
		t.Error("expected error for meeting without stable id")
	}
}
