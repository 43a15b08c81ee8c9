// Package detail shows one notification in full.
package detail

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agent-notify/internal/keys"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/theme"
)

// Actions a detail view can ask the parent to run.
const (
	ActionOpen     = "open"
	ActionMarkRead = "read"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// ActionMsg signals the parent to execute an action on the shown
// notification.
type ActionMsg struct {
	Action string
	ID     string
}

// Model is the notification detail view component.
type Model struct {
	notification *model.Notification
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Open):
			if m.notification != nil {
				id := m.notification.ID
				return m, func() tea.Msg {
					return ActionMsg{Action: ActionOpen, ID: id}
				}
			}

		case key.Matches(msg, m.keys.MarkRead):
			if m.notification != nil && !m.notification.Read {
				id := m.notification.ID
				return m, func() tea.Msg {
					return ActionMsg{Action: ActionMarkRead, ID: id}
				}
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No notification selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.notification == nil {
		return ""
	}

	n := m.notification
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Icon()+" "+n.Title))

	typeBadge := theme.TypeLabelStyle(string(n.Type)).Render(strings.ToUpper(string(n.Type)))
	readBadge := theme.UnreadStyle.Render("unread")
	if n.Read {
		readBadge = theme.ReadStyle.Render("read")
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, typeBadge, "  ", readBadge))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-9s", label+":")), valStyle.Render(value))
	}

	sections = append(sections, row("ID", n.ID))
	if !n.CreatedAt.IsZero() {
		sections = append(sections, row("Created", n.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	if url := n.URL(); url != "" {
		sections = append(sections, row("Link", url))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	}
	sections = append(sections, body)

	if extra := dataRows(n.Data); len(extra) > 0 {
		headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
		sections = append(sections, "", separator, "", headerStyle.Render("Data"), "")
		for _, kv := range extra {
			sections = append(sections, row(kv[0], kv[1]))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// dataRows lists the data fields other than url, sorted by key.
func dataRows(data map[string]any) [][2]string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "url" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][2]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, [2]string{k, formatValue(data[k])})
	}
	return rows
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return "-"
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

// SetNotification updates the notification being displayed. Passing the
// record already shown keeps the scroll position.
func (m *Model) SetNotification(n model.Notification) {
	same := m.notification != nil && m.notification.ID == n.ID
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	if !same {
		m.viewport.GotoTop()
	}
}

// Current returns the ID of the shown notification.
func (m Model) Current() (string, bool) {
	if m.notification == nil {
		return "", false
	}
	return m.notification.ID, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
