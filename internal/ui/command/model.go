package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/theme"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// Commands understood by the palette, offered as completions.
var Commands = []string{
	"refresh",
	"check",
	"rename",
	"forget",
	"copy",
	"images",
	"help",
	"quit",
}

// Model is the command palette.
type Model struct {
	input textinput.Model
	width int
}

// New creates a command palette.
func New(width int) Model {
	ti := textinput.New()
	ti.Placeholder = strings.Join(Commands, ", ")
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(Commands)

	m := Model{input: ti}
	m.SetWidth(width)
	return m
}

// Update handles key input. Enter emits the trimmed command and clears
// the input; tab completes the current suggestion.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "enter" {
		cmd := strings.ToLower(strings.TrimSpace(m.input.Value()))
		m.input.Reset()
		if cmd == "" {
			return m, nil
		}
		return m, func() tea.Msg { return CommandMsg(cmd) }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command")

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.input.View()))
}

// SetWidth updates the palette width.
func (m *Model) SetWidth(width int) {
	m.width = width
	m.input.Width = max(width-10, 10)
}

// Focus gives keyboard focus to the input.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	return m.input.Focus()
}

// Blur releases keyboard focus.
func (m *Model) Blur() {
	m.input.Blur()
}
