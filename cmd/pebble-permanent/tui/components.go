package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Row states shown in the trash list.
const (
	StatusDeleted   = "deleted"
	StatusRestoring = "restoring"
	StatusRestored  = "restored"
	StatusFailed    = "failed"
)

// ConfirmationDialog represents a yes/no confirmation dialog
type ConfirmationDialog struct {
	Title       string
	Message     string
	YesSelected bool
	OnConfirm   func() tea.Cmd
	OnCancel    func() tea.Cmd
}

// NewConfirmationDialog creates a new confirmation dialog
func NewConfirmationDialog(title, message string) ConfirmationDialog {
	return ConfirmationDialog{
		Title:       title,
		Message:     message,
		YesSelected: false,
	}
}

// Update handles confirmation dialog updates
func (d *ConfirmationDialog) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "left", "h", "y":
			d.YesSelected = true
			if msg.String() == "y" && d.OnConfirm != nil {
				return d.OnConfirm()
			}
			return nil
		case "right", "l", "n":
			d.YesSelected = false
			if msg.String() == "n" && d.OnCancel != nil {
				return d.OnCancel()
			}
			return nil
		case "enter":
			if d.YesSelected && d.OnConfirm != nil {
				return d.OnConfirm()
			}
			if !d.YesSelected && d.OnCancel != nil {
				return d.OnCancel()
			}
			return nil
		}
	}
	return nil
}

// View renders the confirmation dialog
func (d ConfirmationDialog) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(d.Title))
	b.WriteString("\n\n")
	b.WriteString(d.Message)
	b.WriteString("\n\n")

	yesButton := inactiveButtonStyle.Render("Yes")
	noButton := inactiveButtonStyle.Render("No")

	if d.YesSelected {
		yesButton = activeButtonStyle.Render("Yes")
	} else {
		noButton = activeButtonStyle.Render("No")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left, yesButton, "  ", noButton))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(FormatKey("←/→", "navigate") + " • " + FormatKey("enter", "confirm") + " • " + FormatKey("esc/q", "cancel")))

	return boxStyle.Render(b.String())
}

// TrashItem is one soft-deleted row in the trash list.
type TrashItem struct {
	Table   string
	Key     string
	Removed string
	Summary string
	Status  string
}

func (i TrashItem) FilterValue() string { return i.Table + " " + i.Key + " " + i.Summary }
func (i TrashItem) Title() string {
	return FormatStatus(i.Status) + " " + FormatRow(i.Table, i.Key)
}
func (i TrashItem) Description() string {
	desc := "Removed: " + i.Removed
	if i.Summary != "" {
		desc += "  " + i.Summary
	}
	return mutedStyle.Render(desc)
}

// TrashItemDelegate renders trash list items on two lines.
type TrashItemDelegate struct{}

func (d TrashItemDelegate) Height() int                             { return 2 }
func (d TrashItemDelegate) Spacing() int                            { return 1 }
func (d TrashItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d TrashItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(TrashItem)
	if !ok {
		return
	}

	var s string
	if index == m.Index() {
		s = selectedItemStyle.Render("▸ " + i.Title() + "\n  " + i.Description())
	} else {
		s = unselectedItemStyle.Render("  " + i.Title() + "\n  " + i.Description())
	}

	_, _ = fmt.Fprint(w, s)
}

// LogView displays recent actions
type LogView struct {
	Logs   []string
	MaxLen int
}

// NewLogView creates a new log view
func NewLogView(maxLen int) LogView {
	return LogView{
		Logs:   make([]string, 0),
		MaxLen: maxLen,
	}
}

// AddLog adds a log entry
func (l *LogView) AddLog(entry string) {
	l.Logs = append(l.Logs, entry)
	if len(l.Logs) > l.MaxLen {
		l.Logs = l.Logs[1:]
	}
}

// View renders the log view
func (l LogView) View() string {
	if len(l.Logs) == 0 {
		return mutedStyle.Render("No logs")
	}

	var b strings.Builder
	for _, log := range l.Logs {
		b.WriteString(mutedStyle.Render("• "))
		b.WriteString(log)
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
