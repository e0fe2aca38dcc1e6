package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/draft"
	"github.com/christopherklint97/meetr/internal/fullhour"
)

type fakeActions struct {
	drafts   []draft.Message
	optOuts  []string
	draftErr error
}

func (f *fakeActions) CreateDraft(ctx context.Context, c fullhour.Candidate, msg draft.Message) (string, error) {
	if f.draftErr != nil {
		return "", f.draftErr
	}
	f.drafts = append(f.drafts, msg)
	return "draft-" + c.Entry.StableID, nil
}

func (f *fakeActions) OptOut(c fullhour.Candidate) error {
	f.optOuts = append(f.optOuts, c.Entry.StableID)
	return nil
}

func testCandidates() []fullhour.Candidate {
	start := time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)
	var out []fullhour.Candidate
	for i, s := range []string{"Weekly sync", "Retro", "Planning"} {
		st := start.Add(time.Duration(i) * 24 * time.Hour)
		out = append(out, fullhour.Candidate{
			Entry: calendar.Entry{
				Subject:        s,
				Start:          st,
				End:            st.Add(time.Hour),
				OrganizerName:  "Alice",
				OrganizerEmail: "alice@example.com",
				StableID:       strings.ToLower(strings.ReplaceAll(s, " ", "-")),
			},
			LocalStart: st,
		})
	}
	return out
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends msg and feeds back any dialog result the command produces.
func press(t *testing.T, a *RescheduleApp, msg tea.Msg) bool {
	t.Helper()
	_, cmd := a.Update(msg)
	return drain(a, cmd)
}

// drain runs cmd and reports whether it asked the program to quit.
func drain(a *RescheduleApp, cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	switch msg := cmd().(type) {
	case tea.QuitMsg:
		return true
	case tea.BatchMsg:
		quit := false
		for _, c := range msg {
			if drain(a, c) {
				quit = true
			}
		}
		return quit
	case draftResultMsg, optOutResultMsg:
		_, next := a.Update(msg)
		return drain(a, next)
	}
	return false
}

func TestRescheduleApp_Decisions(t *testing.T) {
	actions := &fakeActions{}
	app := NewRescheduleApp(testCandidates(), draft.ParseTemplate(draft.DefaultTemplate), actions)

	if !strings.Contains(app.View(), "Weekly sync") || !strings.Contains(app.View(), "09:05") {
		t.Errorf("prompt view:\n%s", app.View())
	}

	if press(t, app, key("d")) {
		t.Fatal("should not quit after first candidate")
	}
	if press(t, app, key("s")) {
		t.Fatal("should not quit after second candidate")
	}
	if !press(t, app, key("n")) {
		t.Fatal("should quit after the last candidate")
	}

	outcomes := app.Outcomes()
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	want := []Decision{DecisionDraft, DecisionSkip, DecisionNeverAsk}
	for i, o := range outcomes {
		if o.Decision != want[i] || o.Err != nil {
			t.Errorf("outcome %d = %v (%v), want %v", i, o.Decision, o.Err, want[i])
		}
	}
	if outcomes[0].DraftID != "draft-weekly-sync" {
		t.Errorf("draft id = %q", outcomes[0].DraftID)
	}
	if len(actions.drafts) != 1 || actions.drafts[0].To != "alice@example.com" {
		t.Errorf("drafts = %+v", actions.drafts)
	}
	if len(actions.optOuts) != 1 || actions.optOuts[0] != "planning" {
		t.Errorf("opt-outs = %v", actions.optOuts)
	}
	if !strings.Contains(app.View(), "1 draft(s) created, 1 skipped, 1 never ask again") {
		t.Errorf("done view:\n%s", app.View())
	}
}

func TestRescheduleApp_EditBeforeDraft(t *testing.T) {
	actions := &fakeActions{}
	app := NewRescheduleApp(testCandidates()[:1], draft.Template{Subject: "Move {SUBJECT}", Body: "Hi"}, actions)

	press(t, app, key("e"))
	if app.state != editView {
		t.Fatalf("state = %v, want edit view", app.state)
	}
	press(t, app, key("!"))
	if !press(t, app, tea.KeyMsg{Type: tea.KeyCtrlS}) {
		t.Fatal("expected quit after drafting the only candidate")
	}

	if len(actions.drafts) != 1 {
		t.Fatalf("drafts = %d", len(actions.drafts))
	}
	got := actions.drafts[0]
	if got.Subject != "Move Weekly sync" || got.Body != "Hi!" {
		t.Errorf("draft = %+v", got)
	}
}

func TestRescheduleApp_EscLeavesEditor(t *testing.T) {
	app := NewRescheduleApp(testCandidates()[:1], draft.ParseTemplate(draft.DefaultTemplate), &fakeActions{})
	press(t, app, key("e"))
	press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.state != promptView {
		t.Errorf("state = %v, want prompt view", app.state)
	}
	if len(app.Outcomes()) != 0 {
		t.Error("leaving the editor is not a decision")
	}
}

func TestRescheduleApp_DraftErrorContinues(t *testing.T) {
	actions := &fakeActions{draftErr: errors.New("mailbox full")}
	app := NewRescheduleApp(testCandidates()[:2], draft.ParseTemplate(draft.DefaultTemplate), actions)

	if press(t, app, key("d")) {
		t.Fatal("a failed draft must not end the dialog")
	}
	if app.state != promptView || app.index != 1 {
		t.Errorf("state = %v, index = %d", app.state, app.index)
	}
	if !strings.Contains(app.View(), "mailbox full") {
		t.Errorf("error not shown:\n%s", app.View())
	}
	if app.Outcomes()[0].Err == nil {
		t.Error("outcome should carry the error")
	}
}

func TestRescheduleApp_QuitAndEmpty(t *testing.T) {
	app := NewRescheduleApp(testCandidates(), draft.ParseTemplate(draft.DefaultTemplate), &fakeActions{})
	if !press(t, app, key("q")) {
		t.Error("q should quit")
	}
	if len(app.Outcomes()) != 0 {
		t.Errorf("outcomes = %v", app.Outcomes())
	}

	empty := NewRescheduleApp(nil, draft.Template{}, &fakeActions{})
	if !drain(empty, empty.Init()) {
		t.Error("empty dialog should quit immediately")
	}
}

// resultOf runs cmd and returns the dialog result it produces, skipping
// spinner ticks.
func resultOf(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			if r := resultOf(c); r != nil {
				return r
			}
		}
	case draftResultMsg, optOutResultMsg:
		return msg
	}
	return nil
}

func TestRescheduleApp_KeysIgnoredWhileOptingOut(t *testing.T) {
	actions := &fakeActions{}
	app := NewRescheduleApp(testCandidates(), draft.ParseTemplate(draft.DefaultTemplate), actions)

	_, optCmd := app.Update(key("n"))
	if app.state != optingOutView {
		t.Fatalf("state = %v, want opting-out view", app.state)
	}
	app.Update(key("s"))
	app.Update(key("n"))
	if app.index != 0 || len(app.Outcomes()) != 0 {
		t.Fatalf("keys handled while opting out: index = %d, outcomes = %v", app.index, app.Outcomes())
	}

	app.Update(resultOf(optCmd))
	outcomes := app.Outcomes()
	if len(outcomes) != 1 || outcomes[0].Candidate.Entry.Subject != "Weekly sync" || outcomes[0].Decision != DecisionNeverAsk {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if app.state != promptView || app.index != 1 {
		t.Errorf("state = %v, index = %d, want prompt for Retro", app.state, app.index)
	}
	if len(actions.optOuts) != 1 || actions.optOuts[0] != "weekly-sync" {
		t.Errorf("opt-outs = %v", actions.optOuts)
	}
}

func TestRescheduleApp_StaleResultsDropped(t *testing.T) {
	app := NewRescheduleApp(testCandidates()[:1], draft.ParseTemplate(draft.DefaultTemplate), &fakeActions{})

	_, cmd := app.Update(key("n"))
	res := resultOf(cmd)
	app.Update(res)
	if app.state != doneView {
		t.Fatalf("state = %v, want done", app.state)
	}

	// A duplicate or late result must not touch a finished dialog.
	app.Update(res)
	app.Update(draftResultMsg{index: 0, id: "late"})
	if len(app.Outcomes()) != 1 {
		t.Errorf("outcomes = %+v", app.Outcomes())
	}
	if !strings.Contains(app.View(), "1 never ask again") {
		t.Errorf("done view:\n%s", app.View())
	}
}
