package app

import (
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// forgetAnsweredMsg reports the answer to the forget prompt.
type forgetAnsweredMsg struct {
	confirmed bool
}

// copiedMsg reports the outcome of copying the address.
type copiedMsg struct {
	address string
	err     error
}

// forgetPrompt asks before the mailbox is discarded. The answer lives on
// the heap so huh's Value pointer survives model copies.
type forgetPrompt struct {
	form   *huh.Form
	answer *bool
	width  int
}

// Start opens the prompt for address.
func (p *forgetPrompt) Start(address string) tea.Cmd {
	p.answer = new(bool)
	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Forget " + address + "?").
				Description("The provider drops the mailbox and a new address is allocated.").
				Affirmative("Forget").
				Negative("Keep").
				Value(p.answer),
		),
	).WithWidth(max(min(p.width-4, 70), 30)).WithShowHelp(false)
	return p.form.Init()
}

// Update forwards msg to the form and reports the answer once given.
func (p forgetPrompt) Update(msg tea.Msg) (forgetPrompt, tea.Cmd) {
	if p.form == nil {
		return p, nil
	}

	mdl, cmd := p.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		confirmed := *p.answer
		p.form = nil
		return p, func() tea.Msg { return forgetAnsweredMsg{confirmed: confirmed} }
	case huh.StateAborted:
		p.form = nil
		return p, func() tea.Msg { return forgetAnsweredMsg{} }
	}
	return p, cmd
}

// View renders the prompt.
func (p forgetPrompt) View() string {
	if p.form == nil {
		return ""
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(p.form.View())
}

// SetSize updates the prompt width.
func (p *forgetPrompt) SetSize(width, _ int) {
	p.width = width
}

// copyAddress returns a command that puts address on the system clipboard.
func copyAddress(address string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{address: address, err: clipboard.WriteAll(address)}
	}
}
