// Package confirm shows yes/no questions as an embedded huh form.
package confirm

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agent-notify/internal/theme"
)

// ResultMsg is dispatched when the question was answered or aborted.
// Aborting counts as a negative answer.
type ResultMsg struct {
	ID        int
	Confirmed bool
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	confirmed bool
}

// Model is the Bubble Tea model for a single pending question.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	id     int
	title  string
	width  int
	height int
}

// New creates an idle confirm model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start shows question. id is echoed in the ResultMsg.
func (m *Model) Start(id int, title, question, affirmative, negative string) tea.Cmd {
	m.id = id
	m.title = title
	m.fb.confirmed = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative(affirmative).
				Negative(negative).
				Value(&m.fb.confirmed),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
	return m.form.Init()
}

// Active reports whether a question is on screen.
func (m Model) Active() bool {
	return m.form != nil
}

// ID returns the id of the current question.
func (m Model) ID() int {
	return m.id
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		id, ok := m.id, m.fb.confirmed
		m.form = nil
		return m, func() tea.Msg { return ResultMsg{ID: id, Confirmed: ok} }
	case huh.StateAborted:
		id := m.id
		m.form = nil
		return m, func() tea.Msg { return ResultMsg{ID: id} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(m.title) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	w := m.width - 6
	if w > 70 {
		w = 70
	}
	if w < 20 {
		w = 20
	}
	return w
}
