package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherklint97/meetr/internal/draft"
	"github.com/christopherklint97/meetr/internal/fullhour"
)

type viewState int

const (
	promptView viewState = iota
	editView
	draftingView
	optingOutView
	doneView
)

// Decision is the user's answer for one full-hour meeting.
type Decision int

const (
	DecisionSkip Decision = iota
	DecisionDraft
	DecisionNeverAsk
)

func (d Decision) String() string {
	switch d {
	case DecisionDraft:
		return "draft"
	case DecisionNeverAsk:
		return "never ask again"
	default:
		return "skip"
	}
}

// Outcome records what happened to one candidate.
type Outcome struct {
	Candidate fullhour.Candidate
	Decision  Decision
	DraftID   string
	Err       error
}

// Actions performs the side effects the dialog asks for.
type Actions interface {
	CreateDraft(ctx context.Context, c fullhour.Candidate, msg draft.Message) (string, error)
	OptOut(c fullhour.Candidate) error
}

// Result messages carry the candidate index they were started for.
type draftResultMsg struct {
	index int
	id    string
	err   error
}

type optOutResultMsg struct {
	index int
	err   error
}

// RescheduleApp walks through full-hour meetings one at a time and asks
// whether to draft a request to start five minutes later.
type RescheduleApp struct {
	state      viewState
	candidates []fullhour.Candidate
	index      int
	template   draft.Template
	actions    Actions
	pending    draft.Message

	input    inputModel
	spinner  spinner.Model
	status   string
	outcomes []Outcome
}

func NewRescheduleApp(candidates []fullhour.Candidate, tpl draft.Template, actions Actions) *RescheduleApp {
	s := spinner.New()
	s.Spinner = spinner.Dot

	a := &RescheduleApp{
		candidates: candidates,
		template:   tpl,
		actions:    actions,
		spinner:    s,
	}
	if len(candidates) == 0 {
		a.state = doneView
	}
	return a
}

func (a *RescheduleApp) Init() tea.Cmd {
	if a.state == doneView {
		return tea.Quit
	}
	return nil
}

func (a *RescheduleApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.state = doneView
			return a, tea.Quit
		}
	case draftResultMsg:
		return a.handleDraftResult(msg)
	case optOutResultMsg:
		return a.handleOptOutResult(msg)
	}

	switch a.state {
	case promptView:
		return a.updatePrompt(msg)
	case editView:
		return a.updateEdit(msg)
	case draftingView, optingOutView:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case doneView:
		if _, ok := msg.(tea.KeyMsg); ok {
			return a, tea.Quit
		}
	}

	return a, nil
}

func (a *RescheduleApp) View() string {
	switch a.state {
	case promptView:
		return a.promptView()
	case editView:
		return a.input.View()
	case draftingView:
		return a.spinner.View() + " Creating draft..."
	case optingOutView:
		return a.spinner.View() + " Saving opt-out..."
	case doneView:
		return a.doneView()
	}
	return ""
}

// Outcomes returns the decisions taken so far, in candidate order.
func (a *RescheduleApp) Outcomes() []Outcome {
	return a.outcomes
}

func (a *RescheduleApp) current() fullhour.Candidate {
	return a.candidates[a.index]
}

func (a *RescheduleApp) updatePrompt(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}

	c := a.current()
	switch keyMsg.String() {
	case "d", "enter":
		return a.startDraft(a.template.Render(c))
	case "e":
		a.pending = a.template.Render(c)
		a.input = newInputModel(a.pending.Subject, a.pending.Body)
		a.state = editView
		return a, a.input.textarea.Focus()
	case "s":
		a.record(Outcome{Candidate: c, Decision: DecisionSkip})
		a.status = dimStyle.Render("Skipped " + c.Entry.Subject)
		return a.advance()
	case "n":
		a.state = optingOutView
		return a, tea.Batch(a.spinner.Tick, a.optOut(a.index, c))
	case "q", "esc":
		a.state = doneView
		return a, tea.Quit
	}
	return a, nil
}

func (a *RescheduleApp) updateEdit(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			a.state = promptView
			return a, nil
		case "ctrl+s":
			edited := a.pending
			edited.Body = a.input.Value()
			return a.startDraft(edited)
		}
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *RescheduleApp) startDraft(msg draft.Message) (tea.Model, tea.Cmd) {
	a.pending = msg
	a.state = draftingView
	index, c := a.index, a.current()
	create := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		id, err := a.actions.CreateDraft(ctx, c, msg)
		return draftResultMsg{index: index, id: id, err: err}
	}
	return a, tea.Batch(a.spinner.Tick, create)
}

func (a *RescheduleApp) optOut(index int, c fullhour.Candidate) tea.Cmd {
	return func() tea.Msg {
		return optOutResultMsg{index: index, err: a.actions.OptOut(c)}
	}
}

// awaiting reports whether a result for index is still expected in state.
func (a *RescheduleApp) awaiting(state viewState, index int) bool {
	return a.state == state && index == a.index && index < len(a.candidates)
}

func (a *RescheduleApp) handleDraftResult(msg draftResultMsg) (tea.Model, tea.Cmd) {
	if !a.awaiting(draftingView, msg.index) {
		return a, nil
	}
	c := a.current()
	a.record(Outcome{Candidate: c, Decision: DecisionDraft, DraftID: msg.id, Err: msg.err})
	if msg.err != nil {
		a.status = errorStyle.Render("Error: ") + msg.err.Error()
	} else {
		a.status = successStyle.Render("Draft created") + " for " + c.Entry.Subject + dimStyle.Render(" (check your Drafts folder)")
	}
	return a.advance()
}

func (a *RescheduleApp) handleOptOutResult(msg optOutResultMsg) (tea.Model, tea.Cmd) {
	if !a.awaiting(optingOutView, msg.index) {
		return a, nil
	}
	c := a.current()
	a.record(Outcome{Candidate: c, Decision: DecisionNeverAsk, Err: msg.err})
	if msg.err != nil {
		a.status = errorStyle.Render("Error: ") + msg.err.Error()
	} else {
		a.status = dimStyle.Render("Will not ask again about " + c.Entry.Subject)
	}
	return a.advance()
}

func (a *RescheduleApp) record(o Outcome) {
	a.outcomes = append(a.outcomes, o)
}

func (a *RescheduleApp) advance() (tea.Model, tea.Cmd) {
	a.index++
	if a.index >= len(a.candidates) {
		a.state = doneView
		return a, tea.Quit
	}
	a.state = promptView
	return a, nil
}

func (a *RescheduleApp) promptView() string {
	c := a.current()

	organizer := c.Entry.OrganizerName
	if c.Entry.OrganizerEmail != "" {
		if organizer == "" {
			organizer = c.Entry.OrganizerEmail
		} else {
			organizer += " <" + c.Entry.OrganizerEmail + ">"
		}
	}
	if organizer == "" {
		organizer = warningStyle.Render("unknown (no draft possible)")
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Full-Hour Meeting %d of %d", a.index+1, len(a.candidates))))
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render("Meeting:") + " " + highlightStyle.Render(c.Entry.Subject) + "\n")
	sb.WriteString(labelStyle.Render("Start:") + " " + draft.FormatStart(c.LocalStart) + "\n")
	sb.WriteString(labelStyle.Render("Organizer:") + " " + organizer + "\n")
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Ask the organizer to start at %s instead?", c.NewStart().Format("15:04")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("[d]raft email • [e]dit first • [s]kip • [n]ever ask again • [q]uit"))

	view := boxStyle.Render(sb.String())
	if a.status != "" {
		view = a.status + "\n\n" + view
	}
	return view
}

func (a *RescheduleApp) doneView() string {
	var drafted, skipped, never, failed int
	for _, o := range a.outcomes {
		switch {
		case o.Err != nil:
			failed++
		case o.Decision == DecisionDraft:
			drafted++
		case o.Decision == DecisionNeverAsk:
			never++
		default:
			skipped++
		}
	}

	line := fmt.Sprintf("%d draft(s) created, %d skipped, %d never ask again", drafted, skipped, never)
	if failed > 0 {
		line += errorStyle.Render(fmt.Sprintf(", %d failed", failed))
	}
	view := successStyle.Render("Done") + " " + line
	if a.status != "" {
		view = a.status + "\n" + view
	}
	return view + "\n"
}
