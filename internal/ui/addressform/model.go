// Package addressform is the rename form for the mailbox address.
package addressform

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/lifecycle"
	"github.com/nhle/tempmail/internal/provider"
	"github.com/nhle/tempmail/internal/theme"
)

// SubmittedMsg is dispatched when the user confirms the form.
type SubmittedMsg struct {
	Draft lifecycle.Draft
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds field values on the heap so huh's Value pointers
// stay valid across Bubble Tea model copies.
type formBindings struct {
	localPart string
	domain    string
}

// Model wraps the huh form editing the rename draft.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	domains provider.Domains
	current string
	err     error
	saving  bool
	width   int
	height  int
}

// New creates a rename form offering domains.
func New(domains provider.Domains, width, height int) Model {
	return Model{
		fb:      &formBindings{},
		domains: domains,
		width:   width,
		height:  height,
	}
}

// Start opens the form seeded from draft. current is the address being
// replaced, shown for reference.
func (m *Model) Start(draft lifecycle.Draft, current string) tea.Cmd {
	m.fb.localPart = draft.LocalPart
	m.fb.domain = draft.Domain
	if !m.domains.Supports(m.fb.domain) && len(m.domains) > 0 {
		m.fb.domain = m.domains[0]
	}
	m.current = current
	m.err = nil
	m.saving = false
	m.form = m.buildForm()
	return m.form.Init()
}

// Failed reopens the form with the submitted values and shows err.
func (m *Model) Failed(err error) tea.Cmd {
	m.err = err
	m.saving = false
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.saving {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.saving = true
		draft := lifecycle.Draft{
			LocalPart: strings.TrimSpace(m.fb.localPart),
			Domain:    m.fb.domain,
		}
		return m, func() tea.Msg { return SubmittedMsg{Draft: draft} }
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		Render("Edit address")

	lines := []string{title}
	if m.current != "" {
		lines = append(lines, theme.DimmedStyle.Render("current: "+m.current))
	}
	lines = append(lines, theme.NoticeStyle.Render("Changing the address empties the inbox."), "")

	if m.saving {
		lines = append(lines, theme.DimmedStyle.Render("Saving..."))
	} else {
		lines = append(lines, m.form.View())
	}
	if m.err != nil {
		lines = append(lines, theme.ErrorStyle.Render(m.err.Error()))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m *Model) buildForm() *huh.Form {
	opts := make([]huh.Option[string], len(m.domains))
	for i, d := range m.domains {
		opts[i] = huh.NewOption("@"+d, d)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("local part, before the @").
				Value(&m.fb.localPart).
				Validate(validateLocalPart),
			huh.NewSelect[string]().
				Title("Domain").
				Options(opts...).
				Value(&m.fb.domain),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 30 {
		w = 30
	}
	if w > 80 {
		w = 80
	}
	return w
}

// validateLocalPart mirrors the checks made again before the rename call
// so mistakes are caught while typing.
func validateLocalPart(s string) error {
	return provider.ValidateRename(s, "", nil)
}
