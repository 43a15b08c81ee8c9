package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/client"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/permission"
	"github.com/nhle/agent-notify/internal/session"
	"github.com/nhle/agent-notify/internal/theme"
	"github.com/nhle/agent-notify/internal/worker"
)

// statusMsg carries a session status change.
type statusMsg session.Status

// registeredMsg is sent once the backend issued an identity.
type registeredMsg struct {
	id model.Identity
}

// actionResultMsg reports the outcome of a user action.
type actionResultMsg struct {
	op      string
	success string
	err     error
}

// workerStatusMsg reports whether the background worker accepted the
// identity. checking is set once it polls for us, even if subscribing to
// its broadcasts then failed.
type workerStatusMsg struct {
	checking bool
	err      error
}

// workerEventMsg carries a broadcast from the background worker.
type workerEventMsg worker.Event

func waitForStatus(ch <-chan session.Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg(st)
	}
}

// restoreSnapshot shows the last known history while registering.
func (m Model) restoreSnapshot() tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		restored, err := deps.Service.RestoreSnapshot(deps.Ctx)
		if err != nil {
			deps.Logger.Warn("restoring snapshot", zap.Error(err))
			return nil
		}
		if restored {
			deps.Logger.Debug("snapshot restored", zap.Int("count", deps.Store.Len()))
		}
		return nil
	}
}

// register blocks until the backend issues an identity or the page quits.
func (m Model) register() tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		id, err := deps.Registrar.RegisterUntilSuccess(deps.Ctx, deps.DeviceName, deps.DeviceID)
		if err != nil {
			return nil
		}
		return registeredMsg{id: id}
	}
}

// afterRegistration loads the history and only then starts polling, so the
// first cycle merges on top of the loaded history.
func (m Model) afterRegistration() tea.Cmd {
	deps := m.deps

	start := func() tea.Msg {
		err := deps.Service.LoadHistory(deps.Ctx)
		if ctxDone(deps.Ctx) {
			return nil
		}
		deps.Channel.Start(deps.Ctx)
		deps.Session.MarkPolling()
		if err != nil {
			return actionResultMsg{op: "Loading history", err: err}
		}
		return nil
	}

	return tea.Batch(start, m.requestPermission(), m.connectWorker())
}

// connectWorker hands the identity to the background worker and listens
// for its broadcasts.
func (m Model) connectWorker() tea.Cmd {
	deps := m.deps
	if deps.Worker == nil {
		return nil
	}
	return func() tea.Msg {
		id := deps.Session.Identity()
		if err := deps.Worker.StartCheck(deps.Ctx, id); err != nil {
			return workerStatusMsg{err: err}
		}
		_, err := deps.Worker.Subscribe(func(ev worker.Event) {
			deps.Bridge.send(workerEventMsg(ev))
		})
		return workerStatusMsg{checking: true, err: err}
	}
}

// handleWorkerEvent applies a worker broadcast. Delivered items were
// already alerted by the worker, so they only enter the history here.
func (m Model) handleWorkerEvent(ev worker.Event) tea.Cmd {
	deps := m.deps
	switch ev.Type {
	case worker.NotificationsDelivered:
		items := ev.Notifications
		return func() tea.Msg {
			added := deps.Store.Merge(items)
			deps.Logger.Debug("worker delivered", zap.Int("new", len(added)))
			return nil
		}

	case worker.NotificationClicked:
		return func() tea.Msg {
			deps.Bridge.Focus()
			if err := deps.Service.LoadHistory(deps.Ctx); err != nil {
				return actionResultMsg{op: "Reloading history", err: err}
			}
			return nil
		}
	}
	return nil
}

func (m Model) markRead(id string) tea.Cmd {
	svc, ctx := m.deps.Service, m.deps.Ctx
	return func() tea.Msg {
		return actionResultMsg{op: "Mark read", err: svc.MarkRead(ctx, id)}
	}
}

func (m Model) markAllRead() tea.Cmd {
	svc, ctx := m.deps.Service, m.deps.Ctx
	return func() tea.Msg {
		return actionResultMsg{
			op:      "Mark all read",
			success: "All notifications marked read.",
			err:     svc.MarkAllRead(ctx),
		}
	}
}

func (m Model) clearHistory() tea.Cmd {
	svc, ctx := m.deps.Service, m.deps.Ctx
	return func() tea.Msg {
		return actionResultMsg{
			op:      "Clear history",
			success: "History cleared.",
			err:     svc.ClearHistory(ctx),
		}
	}
}

func (m Model) sendTest() tea.Cmd {
	svc, ctx := m.deps.Service, m.deps.Ctx
	return func() tea.Msg {
		return actionResultMsg{
			op:      "Test notification",
			success: "Test notification requested.",
			err:     svc.SendTest(ctx),
		}
	}
}

func (m Model) click(id, action string) tea.Cmd {
	p, ctx := m.deps.Presenter, m.deps.Ctx
	return func() tea.Msg {
		return actionResultMsg{op: "Open", err: p.Click(ctx, id, action)}
	}
}

func (m Model) requestPermission() tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		if !deps.Session.Registered() {
			return actionResultMsg{op: "Permission request", err: session.ErrUnregistered}
		}
		before := deps.Gate.State(deps.Ctx)
		st, err := deps.Gate.Request(deps.Ctx)
		if err != nil {
			if ctxDone(deps.Ctx) {
				return nil
			}
			return actionResultMsg{op: "Permission request", err: err}
		}
		if st == permission.Granted && before != permission.Granted {
			return bannerMsg{text: "Desktop notifications enabled.", level: theme.BannerInfo}
		}
		return nil
	}
}

func (m Model) resetPermission() tea.Cmd {
	gate, ctx := m.deps.Gate, m.deps.Ctx
	return func() tea.Msg {
		return actionResultMsg{
			op:      "Permission reset",
			success: "Desktop notification permission reset; you will be asked again.",
			err:     gate.Reset(ctx),
		}
	}
}

func ctxDone(ctx context.Context) bool {
	return ctx.Err() != nil
}

// checkBackend registers against baseURL once to prove the backend answers
// before settings pointing at it are saved.
func (m Model) checkBackend(ctx context.Context, baseURL string) error {
	c := client.New(baseURL)
	if m.deps.Config != nil {
		c = client.New(baseURL, client.WithTimeout(m.deps.Config.Backend.Timeout))
	}
	_, err := c.Register(ctx, m.deps.DeviceName, m.deps.DeviceID)
	return err
}
