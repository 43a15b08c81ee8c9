// Package history renders the in-app notification history.
package history

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agent-notify/internal/keys"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/theme"
)

// OpenRequestMsg is sent when the user opens a notification.
type OpenRequestMsg struct {
	ID string
}

// DetailRequestMsg is sent when the user asks for a notification's details.
type DetailRequestMsg struct {
	ID string
}

// MarkReadRequestMsg is sent when the user marks a notification read.
type MarkReadRequestMsg struct {
	ID string
}

// Model is the history list view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates an empty history view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetStatusBarItemName("notification", "notifications")
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetNotifications replaces the displayed records, newest first. The
// selection follows the previously selected record when it is still shown.
func (m *Model) SetNotifications(items []model.Notification) tea.Cmd {
	selected, hadSelection := m.Selected()

	listItems := make([]list.Item, len(items))
	idx := 0
	for i, n := range items {
		listItems[i] = Item{Notification: n}
		if hadSelection && n.ID == selected.ID {
			idx = i
		}
	}

	cmd := m.list.SetItems(listItems)
	if len(listItems) > 0 {
		m.list.Select(idx)
	}
	return cmd
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Len returns the number of rows shown.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Update handles messages for the history view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Open):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return OpenRequestMsg{ID: n.ID} }

		case key.Matches(msg, m.keys.Details):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return DetailRequestMsg{ID: n.ID} }

		case key.Matches(msg, m.keys.MarkRead):
			n, ok := m.Selected()
			if !ok || n.Read {
				return m, nil
			}
			return m, func() tea.Msg { return MarkReadRequestMsg{ID: n.ID} }
		}
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the history view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// SetTitle updates the list title, e.g. with the unread counter.
func (m *Model) SetTitle(unread int) {
	if unread > 0 {
		m.list.Title = fmt.Sprintf("Notifications (%d unread)", unread)
		return
	}
	m.list.Title = "Notifications"
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	return style.Render(
		"No notifications yet.\n\n" +
			"Press t to ask the backend for a test notification.",
	)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
