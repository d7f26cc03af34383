package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var (
	// HeaderStyle is used for the top bar showing the current address.
	HeaderStyle lipgloss.Style

	// StatusBarStyle is used for the bottom status bar.
	StatusBarStyle lipgloss.Style

	// DetailPanelStyle wraps panel content such as help and the palette.
	DetailPanelStyle lipgloss.Style

	// ListItemStyle is the base style for inbox rows.
	ListItemStyle lipgloss.Style

	// SelectedItemStyle highlights the focused inbox row.
	SelectedItemStyle lipgloss.Style

	// UnreadStyle marks messages not yet opened.
	UnreadStyle lipgloss.Style

	// DimmedStyle is used for secondary text like dates and excerpts.
	DimmedStyle lipgloss.Style

	// ErrorStyle is used for failures shown in the status bar.
	ErrorStyle lipgloss.Style

	// NoticeStyle is used for transient confirmations.
	NoticeStyle lipgloss.Style
)

func init() {
	Apply("default")
}

// Apply switches the style set. "plain" drops colors for terminals that
// render them poorly; any other name selects the default palette.
func Apply(name string) {
	if name == "plain" {
		HeaderStyle = lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
		StatusBarStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 1)
		DetailPanelStyle = lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.NormalBorder())
		ListItemStyle = lipgloss.NewStyle().PaddingLeft(2)
		SelectedItemStyle = lipgloss.NewStyle().PaddingLeft(1).Bold(true).
			Border(lipgloss.NormalBorder(), false, false, false, true)
		UnreadStyle = lipgloss.NewStyle().Bold(true)
		DimmedStyle = lipgloss.NewStyle().Faint(true)
		ErrorStyle = lipgloss.NewStyle().Bold(true)
		NoticeStyle = lipgloss.NewStyle()
		return
	}

	HeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorWhite).
		Background(ColorBlue).
		Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
		Foreground(ColorWhite).
		Background(ColorSubtle).
		Padding(0, 1)

	DetailPanelStyle = lipgloss.NewStyle().
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	ListItemStyle = lipgloss.NewStyle().
		PaddingLeft(2)

	SelectedItemStyle = lipgloss.NewStyle().
		PaddingLeft(1).
		Bold(true).
		Foreground(ColorBlue).
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(ColorBlue)

	UnreadStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorGreen)

	DimmedStyle = lipgloss.NewStyle().
		Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorRed)

	NoticeStyle = lipgloss.NewStyle().
		Foreground(ColorYellow)
}

// SyncStyle returns a color-coded style for a synchronizer state name.
func SyncStyle(state string) lipgloss.Style {
	base := HeaderStyle.Bold(false)

	switch state {
	case "syncing":
		return base.Foreground(ColorYellow)
	case "error":
		return base.Foreground(ColorRed)
	default:
		return base
	}
}
