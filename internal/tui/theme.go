package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the monitor palette (Tokyo Night).
type Theme struct {
	Text    lipgloss.Color
	Dim     lipgloss.Color
	Border  lipgloss.Color
	Accent  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

var DefaultTheme = Theme{
	Text:    lipgloss.Color("#c0caf5"),
	Dim:     lipgloss.Color("#565f89"),
	Border:  lipgloss.Color("#414868"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Success: lipgloss.Color("#9ece6a"),
	Warning: lipgloss.Color("#e0af68"),
	Error:   lipgloss.Color("#f7768e"),
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Spark   lipgloss.Style
	Panel   lipgloss.Style
	KeyHint lipgloss.Style
}

// NewStyles builds Styles from t.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),
		Label:   lipgloss.NewStyle().Foreground(t.Dim).Width(12),
		Value:   lipgloss.NewStyle().Foreground(t.Text).Bold(true),
		Success: lipgloss.NewStyle().Foreground(t.Success),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
		Spark:   lipgloss.NewStyle().Foreground(t.Warning),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		KeyHint: lipgloss.NewStyle().Foreground(t.Dim),
	}
}

var DefaultStyles = NewStyles(DefaultTheme)
