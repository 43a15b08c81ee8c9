package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agent-notify/internal/keys"
	"github.com/nhle/agent-notify/internal/theme"
)

const paletteHelp = `Commands (press : to open the palette)
  refresh              poll the backend now
  read <id>            mark a notification read
  read-all             mark every notification read
  clear                delete the whole history
  test                 ask the backend for a test notification
  permission [reset]   ask for desktop alerts, or forget the answer
  open <id>            open a notification's link
  settings             edit backend and polling settings
  quit                 leave`

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Keyboard Shortcuts")

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	helpText := m.help.View(m.keys)

	commands := lipgloss.NewStyle().
		MarginTop(1).
		Render(theme.HelpStyle.Render(paletteHelp))

	content := lipgloss.JoinVertical(lipgloss.Left, title, helpText, commands)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
