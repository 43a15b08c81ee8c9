// Package app is the root Bubble Tea model of the notification page.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/keys"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/notifications"
	"github.com/nhle/agent-notify/internal/permission"
	"github.com/nhle/agent-notify/internal/presenter"
	"github.com/nhle/agent-notify/internal/session"
	"github.com/nhle/agent-notify/internal/store"
	appsync "github.com/nhle/agent-notify/internal/sync"
	"github.com/nhle/agent-notify/internal/theme"
	"github.com/nhle/agent-notify/internal/ui"
	"github.com/nhle/agent-notify/internal/ui/command"
	configview "github.com/nhle/agent-notify/internal/ui/config"
	"github.com/nhle/agent-notify/internal/ui/confirm"
	"github.com/nhle/agent-notify/internal/ui/detail"
	helpview "github.com/nhle/agent-notify/internal/ui/help"
	"github.com/nhle/agent-notify/internal/ui/history"
	"github.com/nhle/agent-notify/internal/worker"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewHelp
	ViewCommand
	ViewConfirm
	ViewDetail
	ViewSettings
)

// Deps are the collaborators of the page. Worker is optional; without
// Config the settings view is disabled.
type Deps struct {
	Config     *model.AppConfig
	ConfigPath string
	Ctx        context.Context
	Cancel     context.CancelFunc
	Session    *session.Session
	Registrar  *session.Registrar
	DeviceName string
	DeviceID   string
	Channel    *appsync.Channel
	Store      *store.Store
	Service    *notifications.Service
	Presenter  *presenter.Presenter
	Gate       *permission.Gate
	Worker     *worker.Client
	Bridge     *Bridge
	Logger     *zap.Logger
}

type banner struct {
	text  string
	level string
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the background services of the page.
type Model struct {
	deps         *Deps
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	history      history.Model
	helpView     helpview.Model
	commandView  command.Model
	confirmView  confirm.Model
	detailView   detail.Model
	settingsView configview.Model
	prompts      []promptMsg
	status       session.Status
	statusCh     <-chan session.Status
	banner       *banner
	unread       int
	ready        bool
	workerOnline bool
}

// New creates the root model. It hooks the store and session into the
// Bubble Tea event loop through deps.Bridge.
func New(deps *Deps) Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	k := keys.DefaultKeyMap()

	deps.Store.OnChange(deps.Bridge.StoreChanged)

	return Model{
		deps:         deps,
		currentView:  ViewList,
		keys:         k,
		history:      history.New(k, 80, 20),
		helpView:     helpview.New(k, 80, 24),
		commandView:  command.New(80, 24),
		confirmView:  confirm.New(80, 24),
		detailView:   detail.New(k, 80, 24),
		settingsView: configview.New(k, 80, 24),
		status:       deps.Session.Status(),
		statusCh:     deps.Session.Subscribe(),
	}
}

// Init shows the last snapshot and starts registration.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.restoreSnapshot(),
		m.register(),
		waitForStatus(m.statusCh),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case statusMsg:
		m.status = session.Status(msg)
		return m, waitForStatus(m.statusCh)

	case registeredMsg:
		return m, m.afterRegistration()

	case storeChangedMsg:
		m.unread = m.deps.Store.UnreadCount()
		m.history.SetTitle(m.unread)
		if id, ok := m.detailView.Current(); ok {
			if n, found := m.deps.Store.Get(id); found {
				m.detailView.SetNotification(n)
			} else if m.currentView == ViewDetail {
				m.currentView = ViewList
			}
		}
		cmd := m.history.SetNotifications(m.deps.Store.List())
		return m, cmd

	case presentedMsg:
		return m.showBanner(fmt.Sprintf("%s %s", msg.n.Icon(), msg.n.Title), theme.BannerInfo), nil

	case bannerMsg:
		return m.showBanner(msg.text, msg.level), nil

	case actionResultMsg:
		return m.handleActionResult(msg), nil

	case workerStatusMsg:
		m.workerOnline = msg.err == nil
		if m.deps.Presenter != nil {
			m.deps.Presenter.DelegateAlerts(msg.checking)
		}
		if msg.err != nil {
			m.deps.Logger.Info("background worker unavailable", zap.Error(msg.err))
		}
		return m, nil

	case workerEventMsg:
		return m, m.handleWorkerEvent(worker.Event(msg))

	case focusMsg:
		if !m.modal() {
			m.currentView = ViewList
		}
		return m, nil

	case promptMsg:
		m.prompts = append(m.prompts, msg)
		if m.currentView == ViewConfirm {
			return m, nil
		}
		return m.nextPrompt()

	case confirm.ResultMsg:
		m.deps.Bridge.resolve(msg.ID, msg.Confirmed)
		m.prompts = m.prompts[1:]
		m.currentView = m.previousView
		if len(m.prompts) > 0 {
			return m.nextPrompt()
		}
		return m, nil

	case history.OpenRequestMsg:
		return m, m.click(msg.ID, presenter.ActionView)

	case history.MarkReadRequestMsg:
		return m, m.markRead(msg.ID)

	case history.DetailRequestMsg:
		n, ok := m.deps.Store.Get(msg.ID)
		if !ok {
			return m, nil
		}
		m.detailView.SetNotification(n)
		m.currentView = ViewDetail
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case detail.ActionMsg:
		if msg.Action == detail.ActionMarkRead {
			return m, m.markRead(msg.ID)
		}
		return m, m.click(msg.ID, presenter.ActionView)

	case command.RequestMsg:
		m.currentView = m.previousView
		return m.execute(msg.Request)

	case command.InvalidMsg:
		m.currentView = m.previousView
		return m.showBanner(msg.Err.Error(), theme.BannerError), nil

	case configview.DoneMsg:
		m.currentView = ViewList
		if msg.Saved {
			return m.showBanner("Settings saved. Restart agentnotify to apply them.", theme.BannerInfo), nil
		}
		return m, nil

	case tea.KeyMsg:
		if m.modal() {
			break
		}

		// Global keys that work regardless of current view
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()
		}

		switch {
		case key.Matches(msg, m.keys.Quit) && m.currentView == ViewList:
			return m, m.quit()

		case key.Matches(msg, m.keys.Help) && m.currentView != ViewCommand:
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			cmd := m.commandView.Focus()
			return m, cmd

		case key.Matches(msg, m.keys.Back) && m.currentView != ViewList:
			m.currentView = ViewList
			return m, nil
		}

		if m.currentView == ViewList {
			switch {
			case key.Matches(msg, m.keys.Refresh):
				return m.execute(command.Request{Kind: command.KindRefresh})
			case key.Matches(msg, m.keys.MarkAllRead):
				return m.execute(command.Request{Kind: command.KindReadAll})
			case key.Matches(msg, m.keys.Clear):
				return m.execute(command.Request{Kind: command.KindClear})
			case key.Matches(msg, m.keys.Test):
				return m.execute(command.Request{Kind: command.KindTest})
			case key.Matches(msg, m.keys.Permission):
				return m.execute(command.Request{Kind: command.KindPermission, Arg: "request"})
			case key.Matches(msg, m.keys.Dismiss):
				m.banner = nil
				m.resize()
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.history, cmd = m.history.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewConfirm:
		m.confirmView, cmd = m.confirmView.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	}

	return m, cmd
}

// modal reports whether the active view takes every key press itself.
func (m Model) modal() bool {
	return m.currentView == ViewConfirm || m.currentView == ViewSettings
}

func (m Model) nextPrompt() (tea.Model, tea.Cmd) {
	p := m.prompts[0]
	if m.currentView != ViewConfirm {
		m.previousView = m.currentView
	}
	m.currentView = ViewConfirm
	cmd := m.confirmView.Start(p.id, p.title, p.question, p.affirmative, p.negative)
	return m, cmd
}

func (m Model) showBanner(text, level string) Model {
	m.banner = &banner{text: text, level: level}
	m.resize()
	return m
}

func (m *Model) resize() {
	if !m.ready {
		return
	}
	m.layout = m.layout.WithBanner(m.banner != nil)
	w := m.layout.ContentWidth()
	h := m.layout.ContentHeight()
	m.history.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
	m.confirmView.SetSize(w, h)
	m.detailView.SetSize(w, h)
	m.settingsView.SetSize(w, h)
}

// quit stops the page's background work off the event loop, since a
// polling cycle in flight may still be sending messages to the program.
func (m Model) quit() tea.Cmd {
	deps := m.deps
	return tea.Sequence(func() tea.Msg {
		if deps.Cancel != nil {
			deps.Cancel()
		}
		deps.Channel.Stop()
		deps.Session.Dispose()
		return nil
	}, tea.Quit)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	layout := m.layout.WithBanner(m.banner != nil)
	header := layout.RenderHeader(m.unread, m.statusLine())

	var bannerRow string
	if m.banner != nil {
		bannerRow = layout.RenderBanner(m.banner.text, m.banner.level)
	}

	statusBar := layout.RenderStatusBar(m.keyHints())
	return layout.Render(header, bannerRow, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewConfirm:
		return m.confirmView.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewSettings:
		return m.settingsView.View()
	default:
		return m.history.View()
	}
}

// statusLine describes registration, polling and worker state.
func (m Model) statusLine() string {
	conn := m.status.Connection.String()
	switch m.status.Connection {
	case session.ConnRetrying:
		conn = fmt.Sprintf("retrying (attempt %d)", m.status.Attempts)
	case session.ConnConnected:
		conn = "connected " + m.status.Identity.Short()
	}
	line := theme.ConnectionStyle(m.status.Connection.String()).Render(conn)

	if st := m.deps.Channel.Status(); st.Active {
		line += " · poll " + st.State.String()
	}
	if m.workerOnline {
		line += " · worker on"
	}
	return line
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return ": close command | enter execute | esc back"
	case ViewConfirm:
		return "←/→ choose | enter confirm"
	case ViewDetail:
		return "esc back | enter open | m read | j/k scroll"
	case ViewSettings:
		return "tab next field | enter submit | esc cancel"
	default:
		hints := "q quit | ? help | : command | enter open | i details | m read | M read all | r refresh"
		if m.banner != nil {
			hints += " | x dismiss"
		}
		return hints
	}
}

// execute runs a validated command request.
func (m Model) execute(req command.Request) (tea.Model, tea.Cmd) {
	switch req.Kind {
	case command.KindRefresh:
		if !m.deps.Session.Registered() {
			return m.showBanner("Still registering, please wait.", theme.BannerWarning), nil
		}
		m.deps.Channel.Refresh()
		return m, nil
	case command.KindRead:
		return m, m.markRead(req.Arg)
	case command.KindReadAll:
		return m, m.markAllRead()
	case command.KindClear:
		return m, m.clearHistory()
	case command.KindTest:
		return m, m.sendTest()
	case command.KindPermission:
		if req.Arg == "reset" {
			return m, m.resetPermission()
		}
		return m, m.requestPermission()
	case command.KindOpen:
		return m, m.click(req.Arg, presenter.ActionView)
	case command.KindSettings:
		if m.deps.Config == nil {
			return m.showBanner("Settings are not available in this session.", theme.BannerWarning), nil
		}
		m.previousView = ViewList
		m.currentView = ViewSettings
		cmd := m.settingsView.Start(*m.deps.Config, m.deps.ConfigPath, m.checkBackend)
		return m, cmd
	case command.KindHelp:
		m.previousView = ViewList
		m.currentView = ViewHelp
		return m, nil
	case command.KindQuit:
		return m, m.quit()
	}
	return m, nil
}

func (m Model) handleActionResult(msg actionResultMsg) Model {
	switch {
	case msg.err == nil:
		if msg.success == "" {
			return m
		}
		return m.showBanner(msg.success, theme.BannerInfo)
	case errors.Is(msg.err, notifications.ErrCancelled):
		return m.showBanner(msg.op+" cancelled.", theme.BannerInfo)
	case errors.Is(msg.err, session.ErrUnregistered):
		return m.showBanner("Not registered yet, please wait.", theme.BannerWarning)
	default:
		m.deps.Logger.Warn("action failed", zap.String("op", msg.op), zap.Error(msg.err))
		return m.showBanner(fmt.Sprintf("%s failed: %v", msg.op, msg.err), theme.BannerError)
	}
}
