package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agent-notify/internal/keys"
	"github.com/nhle/agent-notify/internal/model"
)

func testNotification() model.Notification {
	return model.Notification{
		ID:        "42",
		Type:      model.TypePatent,
		Title:     "Patent granted",
		Message:   "EP123 was granted today.",
		Data:      map[string]any{"url": "https://example.com/p/42", "office": "EPO", "claims": float64(12)},
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestView_RendersNotification(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	m.SetNotification(testNotification())

	out := m.View()
	assert.Contains(t, out, "Patent granted")
	assert.Contains(t, out, "EP123 was granted today.")
	assert.Contains(t, out, "https://example.com/p/42")
	assert.Contains(t, out, "office")
	assert.Contains(t, out, "EPO")
	assert.Contains(t, out, "12")
}

func TestView_Empty(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 60, 10)
	assert.Contains(t, m.View(), "No notification selected")

	_, ok := m.Current()
	assert.False(t, ok)
}

func TestUpdate_Actions(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	m.SetNotification(testNotification())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, ActionMsg{Action: ActionOpen, ID: "42"}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	require.NotNil(t, cmd)
	assert.Equal(t, ActionMsg{Action: ActionMarkRead, ID: "42"}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())
}

func TestUpdate_MarkReadIgnoredWhenRead(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	n := testNotification()
	n.Read = true
	m.SetNotification(n)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	if cmd != nil {
		_, isAction := cmd().(ActionMsg)
		assert.False(t, isAction)
	}
}

func TestDataRows_SkipsURLAndSorts(t *testing.T) {
	rows := dataRows(map[string]any{"url": "x", "b": "2", "a": []any{"x", "y"}})
	require.Len(t, rows, 2)
	assert.Equal(t, [2]string{"a", `["x","y"]`}, rows[0])
	assert.Equal(t, [2]string{"b", "2"}, rows[1])
}
