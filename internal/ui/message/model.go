// Package message is the full message view.
package message

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/keys"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/render"
	"github.com/nhle/tempmail/internal/theme"
)

// BackMsg signals the parent to return to the inbox.
type BackMsg struct{}

// ReloadMsg asks the parent to fetch the shown message again.
type ReloadMsg struct {
	ID string
}

// LoadedMsg carries the outcome of a fetch.
type LoadedMsg struct {
	ID     string
	Detail *model.MessageDetail
	Err    error
}

// Model shows one message in a scrollable viewport.
type Model struct {
	viewport   viewport.Model
	keys       *keys.KeyMap
	id         string
	detail     *model.MessageDetail
	err        error
	loading    bool
	showImages bool
	width      int
	height     int
}

// New creates a message view. showImages is the initial image setting.
func New(k *keys.KeyMap, showImages bool, width, height int) Model {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle().Padding(0, 1)

	return Model{
		viewport:   vp,
		keys:       k,
		showImages: showImages,
		width:      width,
		height:     height,
	}
}

// Open prepares the view for message id while it is being fetched.
func (m *Model) Open(id string) {
	m.id = id
	m.detail = nil
	m.err = nil
	m.loading = true
}

// ID returns the id of the message being shown.
func (m Model) ID() string {
	return m.id
}

// ShowImages reports the current image setting.
func (m Model) ShowImages() bool {
	return m.showImages
}

// ToggleImages flips image blocking and re-renders.
func (m *Model) ToggleImages() {
	m.showImages = !m.showImages
	m.refresh()
}

// Update handles fetch results and key input.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.ID != m.id {
			return m, nil
		}
		m.loading = false
		m.detail = msg.Detail
		m.err = msg.Err
		m.refresh()
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.ToggleImages):
			m.ToggleImages()
			return m, nil

		case key.Matches(msg, m.keys.Reload):
			if m.id == "" {
				return m, nil
			}
			id := m.id
			m.Open(id)
			return m, func() tea.Msg { return ReloadMsg{ID: id} }
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the message.
func (m Model) View() string {
	centered := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center)

	switch {
	case m.loading:
		return centered.Foreground(theme.ColorGray).Render("Loading message...")
	case m.err != nil:
		return centered.Render(
			theme.ErrorStyle.Render("Failed to load message") + "\n\n" +
				theme.DimmedStyle.Render(m.err.Error()) + "\n\n" +
				theme.DimmedStyle.Render("R retry | esc back"),
		)
	case m.detail == nil:
		return centered.Foreground(theme.ColorGray).Render("No message selected")
	}
	return m.viewport.View()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderContent())
}

// renderContent builds the header block and body for the viewport.
func (m Model) renderContent() string {
	if m.detail == nil {
		return ""
	}
	d := m.detail

	subject := strings.TrimSpace(d.Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	label := theme.DimmedStyle
	value := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	var sections []string
	sections = append(sections, lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render(subject), "")

	name, addr := render.ParseSender(d.From)
	from := addr
	if name != "" {
		from = fmt.Sprintf("%s <%s>", name, addr)
	}
	sections = append(sections, label.Render("From:  ")+value.Render(from))
	if date := render.FormatDate(d.Timestamp); date != "" {
		sections = append(sections, label.Render("Date:  ")+value.Render(date))
	}

	images := "blocked (i to show)"
	if m.showImages {
		images = "shown (i to hide)"
	}
	sections = append(sections, label.Render("Images: ")+label.Render(images))

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", sep, "")

	body, err := render.Body(d, render.Options{ShowImages: m.showImages})
	switch {
	case err != nil:
		body = theme.ErrorStyle.Render("Could not render body: " + err.Error())
	case body == "":
		body = theme.DimmedStyle.Italic(true).Render("(empty message)")
	default:
		body = lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body)
	}
	sections = append(sections, body)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
	m.refresh()
}
