// Package config is the settings editor of the notification page.
package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agent-notify/internal/keys"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/theme"
)

// checkTimeout bounds the connection test before saving.
const checkTimeout = 15 * time.Second

// Mode represents the current state of the settings view.
type Mode int

const (
	ModeForm       Mode = iota // Editing
	ModeValidating             // Testing the backend connection
	ModeResult                 // Showing the outcome
)

// Checker tests that a backend answers at baseURL.
type Checker func(ctx context.Context, baseURL string) error

// DoneMsg signals the settings view should close. Saved is set when the
// configuration file was written.
type DoneMsg struct {
	Saved bool
}

// resultMsg carries the outcome of checking and saving.
type resultMsg struct {
	err error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	baseURL      string
	deviceName   string
	foreground   string
	background   string
	alertTimeout string
}

// Model is the Bubble Tea model for the settings editor.
type Model struct {
	mode    Mode
	form    *huh.Form
	fb      *formBindings
	cfg     model.AppConfig
	path    string
	check   Checker
	spinner spinner.Model
	err     error
	saved   bool

	keys          *keys.KeyMap
	width, height int
}

// New creates an idle settings view.
func New(k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		fb:      &formBindings{},
		spinner: sp,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Start opens the form prefilled from cfg. Submitting checks the backend
// with check (when set) and writes the result to path.
func (m *Model) Start(cfg model.AppConfig, path string, check Checker) tea.Cmd {
	m.mode = ModeForm
	m.cfg = cfg
	m.path = path
	m.check = check
	m.err = nil
	m.saved = false

	m.fb.baseURL = cfg.Backend.BaseURL
	m.fb.deviceName = cfg.Registration.DeviceName
	m.fb.foreground = cfg.Polling.ForegroundInterval.String()
	m.fb.background = cfg.Polling.BackgroundInterval.String()
	m.fb.alertTimeout = cfg.Presenter.AlertTimeout.String()

	m.form = m.buildForm()
	return m.form.Init()
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend URL").
				Description("Root URL of the assistant backend").
				Placeholder(model.DefaultBaseURL).
				Value(&m.fb.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Device name").
				Description("Label sent on registration; empty uses the host name").
				Value(&m.fb.deviceName),
			huh.NewInput().
				Title("Poll interval (page open)").
				Placeholder(model.DefaultForegroundInterval.String()).
				Value(&m.fb.foreground).
				Validate(validateDuration("Poll interval")),
			huh.NewInput().
				Title("Poll interval (worker)").
				Placeholder(model.DefaultBackgroundInterval.String()).
				Value(&m.fb.background).
				Validate(validateDuration("Worker interval")),
			huh.NewInput().
				Title("Desktop alert timeout").
				Placeholder(model.DefaultAlertTimeout.String()).
				Value(&m.fb.alertTimeout).
				Validate(validateDuration("Alert timeout")),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultMsg:
		m.err = msg.err
		m.saved = msg.err == nil
		m.mode = ModeResult
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	if m.mode == ModeForm {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeForm:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg { return DoneMsg{} }
		}
		return m.updateForm(msg)

	case ModeValidating:
		// Only allow escape during validation
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeForm
			return m, nil
		}
		return m, nil

	case ModeResult:
		switch msg.String() {
		case "enter", "esc":
			if m.saved {
				return m, func() tea.Msg { return DoneMsg{Saved: true} }
			}
			m.mode = ModeForm
			m.form = m.buildForm()
			return m, m.form.Init()
		case "r":
			if m.err != nil {
				m.mode = ModeValidating
				return m, tea.Batch(m.spinner.Tick, m.validateAndSave())
			}
		}
	}
	return m, nil
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		cfg, err := m.applyForm()
		if err != nil {
			m.err = err
			m.mode = ModeResult
			return m, nil
		}
		m.cfg = cfg
		m.mode = ModeValidating
		return m, tea.Batch(m.spinner.Tick, m.validateAndSave())

	case huh.StateAborted:
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

// applyForm returns the edited configuration.
func (m Model) applyForm() (model.AppConfig, error) {
	cfg := m.cfg
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(m.fb.baseURL), "/")
	cfg.Registration.DeviceName = strings.TrimSpace(m.fb.deviceName)

	var err error
	if cfg.Polling.ForegroundInterval, err = time.ParseDuration(strings.TrimSpace(m.fb.foreground)); err != nil {
		return cfg, fmt.Errorf("poll interval: %w", err)
	}
	if cfg.Polling.BackgroundInterval, err = time.ParseDuration(strings.TrimSpace(m.fb.background)); err != nil {
		return cfg, fmt.Errorf("worker interval: %w", err)
	}
	if cfg.Presenter.AlertTimeout, err = time.ParseDuration(strings.TrimSpace(m.fb.alertTimeout)); err != nil {
		return cfg, fmt.Errorf("alert timeout: %w", err)
	}
	return cfg, cfg.Validate()
}

// validateAndSave tests the connection then writes the file if it passed.
func (m Model) validateAndSave() tea.Cmd {
	cfg, path, check := m.cfg, m.path, m.check
	return func() tea.Msg {
		if check != nil {
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()
			if err := check(ctx, cfg.Backend.BaseURL); err != nil {
				return resultMsg{err: fmt.Errorf("backend check failed: %w", err)}
			}
		}
		if err := model.SaveConfig(path, &cfg); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{}
	}
}

// Config returns the configuration as last applied.
func (m Model) Config() model.AppConfig {
	return m.cfg
}

// View renders the settings UI based on the current mode.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	switch m.mode {
	case ModeValidating:
		return style.Render(fmt.Sprintf(
			"%s Testing connection to %s...\n\nPress esc to cancel.",
			m.spinner.View(), m.cfg.Backend.BaseURL,
		))

	case ModeResult:
		hint := lipgloss.NewStyle().Foreground(theme.ColorGray)
		if m.err != nil {
			errStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorRed)
			return style.Render(errStyle.Render("Settings not saved") + "\n\n" +
				m.err.Error() + "\n\n" +
				hint.Render("r retry | enter/esc edit"))
		}
		okStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen)
		return style.Render(okStyle.Render("Settings saved") + "\n\n" +
			fmt.Sprintf("Written to %s. Restart agentnotify to apply them.", m.path) + "\n\n" +
			hint.Render("enter/esc back"))

	default:
		if m.form == nil {
			return ""
		}
		titleStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorWhite).
			MarginBottom(1)
		return style.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Settings"),
			m.form.View(),
		))
	}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validateDuration(fieldName string) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s must be a duration like 30s or 5m", fieldName)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
		return nil
	}
}
