package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(items ...TrashItem) LoadFunc {
	return func(context.Context) ([]TrashItem, error) { return items, nil }
}

func update(t *testing.T, m TrashModel, msg tea.Msg) (TrashModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	tm, ok := next.(TrashModel)
	require.True(t, ok)
	return tm, cmd
}

func items(m TrashModel) []TrashItem {
	var out []TrashItem
	for _, it := range m.list.Items() {
		out = append(out, it.(TrashItem))
	}
	return out
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTrashModel_Restore(t *testing.T) {
	var restored []string
	restore := func(_ context.Context, item TrashItem) error {
		restored = append(restored, item.Table+"#"+item.Key)
		return nil
	}
	m := NewTrashModel(loaded(TrashItem{Table: "post", Key: "1"}, TrashItem{Table: "post", Key: "2"}), restore)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 40})

	msg := loadTrashCmd(m.load)()
	m, _ = update(t, m, msg)
	require.Len(t, items(m), 2)
	assert.Equal(t, StatusDeleted, items(m)[0].Status)

	m, _ = update(t, m, key("enter"))
	require.Equal(t, ModeConfirm, m.mode)

	m, cmd := update(t, m, key("y"))
	require.NotNil(t, cmd)
	m, cmd = update(t, m, cmd())
	assert.Equal(t, ModeList, m.mode)
	assert.Equal(t, StatusRestoring, items(m)[0].Status)

	m, _ = update(t, m, cmd())
	assert.Equal(t, StatusRestored, items(m)[0].Status)
	assert.Equal(t, 1, m.Restored())
	assert.Equal(t, []string{"post#1"}, restored)

	// a restored row cannot be restored again
	m, _ = update(t, m, key("enter"))
	assert.Equal(t, ModeList, m.mode)
}

func TestTrashModel_Cancel(t *testing.T) {
	m := NewTrashModel(loaded(TrashItem{Table: "post", Key: "1"}), func(context.Context, TrashItem) error {
		t.Fatal("restore should not run")
		return nil
	})
	m, _ = update(t, m, loadTrashCmd(m.load)())

	m, _ = update(t, m, key("enter"))
	require.Equal(t, ModeConfirm, m.mode)
	m, _ = update(t, m, key("esc"))
	assert.Equal(t, ModeList, m.mode)

	m, _ = update(t, m, key("enter"))
	m, cmd := update(t, m, key("n"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, ModeList, m.mode)
	assert.Equal(t, StatusDeleted, items(m)[0].Status)
}

func TestTrashModel_RestoreFailure(t *testing.T) {
	m := NewTrashModel(loaded(TrashItem{Table: "post", Key: "1"}), func(context.Context, TrashItem) error {
		return errors.New("boom")
	})
	m, _ = update(t, m, loadTrashCmd(m.load)())

	m, _ = update(t, m, rowRestoredMsg{index: 0, err: errors.New("boom")})
	assert.Equal(t, StatusFailed, items(m)[0].Status)
	assert.Equal(t, 0, m.Restored())
	assert.Len(t, m.logs.Logs, 1)
	assert.Equal(t, ModeList, m.mode)
}

func TestTrashModel_LoadError(t *testing.T) {
	m := NewTrashModel(func(context.Context) ([]TrashItem, error) {
		return nil, errors.New("connection refused")
	}, nil)

	m, _ = update(t, m, loadTrashCmd(m.load)())
	assert.Equal(t, ModeError, m.mode)
	assert.ErrorContains(t, m.err, "connection refused")
	assert.Contains(t, m.View(), "Trash Unavailable")
}
