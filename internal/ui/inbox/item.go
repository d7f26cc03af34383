package inbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/render"
	"github.com/nhle/tempmail/internal/theme"
)

// Item wraps a message summary for bubbles/list.
type Item struct {
	Summary model.MessageSummary
	Opened  bool
}

// FilterValue returns the text used for list filtering.
func (i Item) FilterValue() string {
	return i.Summary.Subject + " " + i.Summary.From
}

// Title returns the subject, or a placeholder for an empty one.
func (i Item) Title() string {
	if s := strings.TrimSpace(i.Summary.Subject); s != "" {
		return s
	}
	return "(no subject)"
}

// Description returns sender and received date.
func (i Item) Description() string {
	parts := []string{render.SenderLabel(i.Summary.From)}
	if d := render.FormatDate(i.Summary.Timestamp); d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, " | ")
}

// Unread reports whether the message should be marked as new.
func (i Item) Unread() bool {
	return !i.Opened && !i.Summary.Read()
}

// Delegate renders inbox rows on two lines: subject, then sender, date
// and excerpt.
type Delegate struct{}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single inbox row.
func (d Delegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(Item)
	if !ok {
		return
	}

	marker := "  "
	if it.Unread() {
		marker = theme.UnreadStyle.Render("● ")
	}

	width := m.Width() - 4
	title := truncate(it.Title(), width-2)
	meta := it.Description()
	if ex := strings.TrimSpace(it.Summary.Excerpt); ex != "" {
		meta += " | " + ex
	}
	meta = truncate(meta, width-2)

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}
	line1 := style.Render(marker + title)
	line2 := style.Render("  " + theme.DimmedStyle.Render(meta))

	fmt.Fprint(w, lipgloss.JoinVertical(lipgloss.Left, line1, line2))
}

// truncate cuts s to n display columns, adding an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r)) > n-1 {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
