package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorDanger  = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#F3F4F6")
	colorBorder  = lipgloss.Color("#4B5563")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// Trash rows
	tableNameStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	keyStyle = lipgloss.NewStyle().
			Foreground(colorInfo)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true).
				PaddingLeft(2)

	unselectedItemStyle = lipgloss.NewStyle().
				Foreground(colorText).
				PaddingLeft(4)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2)

	activeButtonStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Background(colorPrimary).
				Padding(0, 3).
				Bold(true)

	inactiveButtonStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Background(lipgloss.Color("#1F2937")).
				Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDanger).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	// restoredCountStyle highlights the running total in the header.
	restoredCountStyle = lipgloss.NewStyle().
				Foreground(colorSuccess).
				Bold(true)
)

type statusLook struct {
	icon  string
	color lipgloss.Color
}

var statusLooks = map[string]statusLook{
	StatusDeleted:   {"○", colorWarning},
	StatusRestoring: {"◉", colorInfo},
	StatusRestored:  {"✓", colorSuccess},
	StatusFailed:    {"✗", colorDanger},
}

// FormatStatus returns the icon and name of a row state.
func FormatStatus(status string) string {
	look, ok := statusLooks[status]
	if !ok {
		return mutedStyle.Render(status)
	}
	style := lipgloss.NewStyle().Foreground(look.color)
	return style.Render(look.icon) + " " + style.Bold(true).Render(status)
}

// FormatRow returns "table #key" styled for the trash list.
func FormatRow(table, key string) string {
	return tableNameStyle.Render(table) + " " + keyStyle.Render("#"+key)
}

// FormatKey formats a help key
func FormatKey(key, description string) string {
	return helpKeyStyle.Render(key) + " " + mutedStyle.Render(description)
}
