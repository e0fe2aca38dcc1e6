package tui

import (
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// inputModel edits the body of a reschedule email before it is drafted.
type inputModel struct {
	textarea textarea.Model
	header   string
}

func newInputModel(header string, prefill string) inputModel {
	ta := textarea.New()
	ta.Placeholder = "Email body..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetWidth(76)
	ta.SetHeight(16)
	ta.ShowLineNumbers = false

	if prefill != "" {
		ta.SetValue(prefill)
	}

	return inputModel{
		textarea: ta,
		header:   header,
	}
}

func (m inputModel) Update(msg tea.Msg) (inputModel, tea.Cmd) {
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	header := titleStyle.Render("meetr: Edit Email")
	subject := subtitleStyle.Render(m.header)
	help := helpStyle.Render("Ctrl+S: create draft • Esc: back")

	return header + "\n" + subject + "\n" + m.textarea.View() + "\n" + help
}

func (m inputModel) Value() string {
	return m.textarea.Value()
}
