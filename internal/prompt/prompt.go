// Package prompt implements the pre-migration confirmation. The operator
// must type the database name back before any destructive run proceeds.
package prompt

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// ConfirmModel is the bubbletea model for the typed confirmation.
type ConfirmModel struct {
	input     textinput.Model
	database  string
	action    string
	confirmed bool
	done      bool
	attempts  int
}

// NewConfirmModel creates the confirmation for the named database. action
// is shown to the operator, e.g. "migrate" or "rollback".
func NewConfirmModel(database, action string) ConfirmModel {
	input := textinput.New()
	input.Placeholder = database
	input.CharLimit = 128
	input.Focus()

	return ConfirmModel{input: input, database: database, action: action}
}

func (m ConfirmModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "ctrl+c", "esc":
		m.done = true
		return m, tea.Quit

	case "enter":
		if m.input.Value() == m.database {
			m.confirmed = true
			m.done = true
			return m, tea.Quit
		}
		m.attempts++
		m.input.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(keyMsg)
	return m, cmd
}

func (m ConfirmModel) View() string {
	if m.done {
		return ""
	}

	view := titleStyle.Render(fmt.Sprintf("About to %s database %q", m.action, m.database)) + "\n\n"
	view += warnStyle.Render("This will rename live tables. Type the database name to continue.") + "\n\n"
	view += m.input.View() + "\n\n"
	if m.attempts > 0 {
		view += errStyle.Render(fmt.Sprintf("Name does not match %q.", m.database)) + "\n"
	}
	view += dimStyle.Render("enter to confirm, esc to abort") + "\n"
	return view
}

// Confirmed reports whether the operator typed the database name.
func (m ConfirmModel) Confirmed() bool { return m.confirmed }

// Confirm runs the prompt on the terminal and reports the decision.
func Confirm(database, action string) (bool, error) {
	final, err := tea.NewProgram(NewConfirmModel(database, action)).Run()
	if err != nil {
		return false, fmt.Errorf("running confirmation prompt: %w", err)
	}
	model, ok := final.(ConfirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected prompt model %T", final)
	}
	return model.Confirmed(), nil
}
