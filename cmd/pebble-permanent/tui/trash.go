package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TrashMode represents the current mode of the trash UI
type TrashMode int

const (
	ModeList TrashMode = iota
	ModeConfirm
	ModeError
)

// LoadFunc lists the soft-deleted rows to show.
type LoadFunc func(ctx context.Context) ([]TrashItem, error)

// RestoreFunc restores the row behind item.
type RestoreFunc func(ctx context.Context, item TrashItem) error

// TrashModel is the Bubbletea model for browsing and restoring soft-deleted rows
type TrashModel struct {
	mode         TrashMode
	list         list.Model
	confirmation ConfirmationDialog
	logs         LogView
	err          error
	width        int
	height       int
	load         LoadFunc
	restore      RestoreFunc
	restored     int
}

// NewTrashModel creates a new trash UI model
func NewTrashModel(load LoadFunc, restore RestoreFunc) TrashModel {
	l := list.New([]list.Item{}, TrashItemDelegate{}, 0, 0)
	l.Title = "Trash"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return TrashModel{
		mode:    ModeList,
		list:    l,
		logs:    NewLogView(5),
		load:    load,
		restore: restore,
	}
}

// Restored returns how many rows were restored during the session.
func (m TrashModel) Restored() int { return m.restored }

// Init initializes the model
func (m TrashModel) Init() tea.Cmd {
	return tea.Batch(
		loadTrashCmd(m.load),
		tea.EnterAltScreen,
	)
}

// Messages
type trashLoadedMsg struct {
	items []TrashItem
}

type rowRestoredMsg struct {
	index int
	err   error
}

type errorMsg struct {
	err error
}

// Commands
func loadTrashCmd(load LoadFunc) tea.Cmd {
	return func() tea.Msg {
		items, err := load(context.Background())
		if err != nil {
			return errorMsg{err: fmt.Errorf("failed to load deleted rows: %w", err)}
		}
		return trashLoadedMsg{items: items}
	}
}

func restoreRowCmd(restore RestoreFunc, index int, item TrashItem) tea.Cmd {
	return func() tea.Msg {
		return rowRestoredMsg{index: index, err: restore(context.Background(), item)}
	}
}

func (m *TrashModel) setStatus(index int, status string) TrashItem {
	item := m.list.Items()[index].(TrashItem)
	item.Status = status
	m.list.SetItem(index, item)
	return item
}

// Update handles messages
func (m TrashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case trashLoadedMsg:
		items := make([]list.Item, len(msg.items))
		for i, item := range msg.items {
			if item.Status == "" {
				item.Status = StatusDeleted
			}
			items[i] = item
		}
		return m, m.list.SetItems(items)

	case rowRestoredMsg:
		if msg.err != nil {
			item := m.setStatus(msg.index, StatusFailed)
			m.logs.AddLog(FormatStatus(StatusFailed) + " " + FormatRow(item.Table, item.Key) + mutedStyle.Render(": "+msg.err.Error()))
			return m, nil
		}
		item := m.setStatus(msg.index, StatusRestored)
		m.restored++
		m.logs.AddLog(FormatStatus(StatusRestored) + " " + FormatRow(item.Table, item.Key))
		return m, nil

	case errorMsg:
		m.mode = ModeError
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeList:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit

			case "r":
				m.logs.AddLog(mutedStyle.Render("Reloading"))
				return m, loadTrashCmd(m.load)

			case "enter", " ":
				selected, ok := m.list.SelectedItem().(TrashItem)
				if !ok || (selected.Status != StatusDeleted && selected.Status != StatusFailed) {
					return m, nil
				}
				index := m.list.Index()

				m.confirmation = NewConfirmationDialog(
					"Confirm Restore",
					fmt.Sprintf("Restore %s #%s?\nRows deleted along with it stay deleted.", selected.Table, selected.Key),
				)
				m.confirmation.OnConfirm = func() tea.Cmd {
					return func() tea.Msg { return confirmedMsg{index: index, item: selected} }
				}
				m.confirmation.OnCancel = func() tea.Cmd {
					return func() tea.Msg { return cancelledMsg{} }
				}
				m.mode = ModeConfirm
				return m, nil
			}

		case ModeConfirm:
			switch msg.String() {
			case "ctrl+c", "q", "esc":
				m.mode = ModeList
				return m, nil
			default:
				return m, m.confirmation.Update(msg)
			}

		case ModeError:
			switch msg.String() {
			case "ctrl+c", "q", "enter":
				return m, tea.Quit
			}
		}

	case confirmedMsg:
		m.mode = ModeList
		m.setStatus(msg.index, StatusRestoring)
		return m, restoreRowCmd(m.restore, msg.index, msg.item)

	case cancelledMsg:
		m.mode = ModeList
		return m, nil
	}

	if m.mode == ModeList {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

type confirmedMsg struct {
	index int
	item  TrashItem
}

type cancelledMsg struct{}

// View renders the UI
func (m TrashModel) View() string {
	switch m.mode {
	case ModeList:
		help := helpStyle.Render(
			FormatKey("↑/↓", "navigate") + " • " +
				FormatKey("enter", "restore") + " • " +
				FormatKey("/", "filter") + " • " +
				FormatKey("r", "reload") + " • " +
				FormatKey("q", "quit"),
		)
		header := mutedStyle.Render("Restored this session: ") + restoredCountStyle.Render(fmt.Sprint(m.restored))
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			m.list.View(),
			m.logs.View(),
			help,
		)

	case ModeConfirm:
		return lipgloss.Place(
			m.width,
			m.height,
			lipgloss.Center,
			lipgloss.Center,
			m.confirmation.View(),
		)

	case ModeError:
		msg := titleStyle.Render("Trash Unavailable") + "\n\n" +
			errorStyle.Render(m.err.Error()) + "\n\n" +
			helpStyle.Render(FormatKey("enter/q", "exit"))

		return lipgloss.Place(
			m.width,
			m.height,
			lipgloss.Center,
			lipgloss.Center,
			boxStyle.Render(msg),
		)
	}

	return "Unknown mode"
}

// RunTrashUI starts the interactive trash browser and returns how many rows
// were restored.
func RunTrashUI(load LoadFunc, restore RestoreFunc) (int, error) {
	p := tea.NewProgram(NewTrashModel(load, restore))
	final, err := p.Run()
	if err != nil {
		return 0, err
	}
	return final.(TrashModel).Restored(), nil
}

// confirmModel runs a ConfirmationDialog on its own.
type confirmModel struct {
	dialog    ConfirmationDialog
	confirmed bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, m.dialog.Update(msg)
	case confirmedMsg:
		m.confirmed = true
		return m, tea.Quit
	case cancelledMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string { return m.dialog.View() }

// Confirm asks a yes/no question in the terminal. No is the default.
func Confirm(title, message string) (bool, error) {
	dialog := NewConfirmationDialog(title, message)
	dialog.OnConfirm = func() tea.Cmd { return func() tea.Msg { return confirmedMsg{} } }
	dialog.OnCancel = func() tea.Cmd { return func() tea.Msg { return cancelledMsg{} } }

	final, err := tea.NewProgram(confirmModel{dialog: dialog}).Run()
	if err != nil {
		return false, err
	}
	return final.(confirmModel).confirmed, nil
}
