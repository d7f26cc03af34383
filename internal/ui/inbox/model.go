// Package inbox is the message list view.
package inbox

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/keys"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

// SelectedMsg is sent when the user opens a message.
type SelectedMsg struct {
	ID string
}

// Model is the inbox list view. It only displays what it is given; the
// synchronizer owns the cached list.
type Model struct {
	list    list.Model
	keys    *keys.KeyMap
	opened  map[string]bool
	address string
	width   int
	height  int
}

// New creates an empty inbox view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, Delegate{}, width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return Model{
		list:   l,
		keys:   k,
		opened: make(map[string]bool),
		width:  width,
		height: height,
	}
}

// SetMessages replaces the displayed list, keeping the cursor on the
// same message when it is still present.
func (m *Model) SetMessages(inbox model.Inbox) tea.Cmd {
	var selected string
	if it, ok := m.list.SelectedItem().(Item); ok {
		selected = it.Summary.ID
	}

	items := make([]list.Item, len(inbox))
	cursor := 0
	for i, s := range inbox {
		items[i] = Item{Summary: s, Opened: m.opened[s.ID]}
		if s.ID == selected {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	m.list.Select(cursor)
	return cmd
}

// Reset empties the list for a new mailbox address.
func (m *Model) Reset(address string) tea.Cmd {
	m.address = address
	m.opened = make(map[string]bool)
	return m.SetMessages(nil)
}

// MarkOpened clears the unread marker of id.
func (m *Model) MarkOpened(id string) {
	m.opened[id] = true
	for i, li := range m.list.Items() {
		if it, ok := li.(Item); ok && it.Summary.ID == id {
			it.Opened = true
			m.list.SetItem(i, it)
		}
	}
}

// Len returns the number of displayed messages.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Selected returns the message under the cursor.
func (m Model) Selected() (model.MessageSummary, bool) {
	it, ok := m.list.SelectedItem().(Item)
	return it.Summary, ok
}

// Update handles key input for the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, m.keys.Select) {
		if s, ok := m.Selected(); ok {
			return m, func() tea.Msg { return SelectedMsg{ID: s.ID} }
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, or a waiting notice while it is empty.
func (m Model) View() string {
	if m.Len() == 0 {
		text := "No messages yet."
		if m.address != "" {
			text = "Waiting for mail to\n" + m.address + "\n\nMail is checked automatically; press r to check now."
		}
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(text)
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
