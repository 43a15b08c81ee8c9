package app

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agent-notify/internal/client"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/notifications"
	"github.com/nhle/agent-notify/internal/permission"
	"github.com/nhle/agent-notify/internal/presenter"
	"github.com/nhle/agent-notify/internal/session"
	"github.com/nhle/agent-notify/internal/store"
	appsync "github.com/nhle/agent-notify/internal/sync"
	"github.com/nhle/agent-notify/internal/ui/command"
	"github.com/nhle/agent-notify/internal/ui/confirm"
	"github.com/nhle/agent-notify/tests/testutil"
)

type recordingSender struct {
	mu   gosync.Mutex
	msgs []tea.Msg
}

func (s *recordingSender) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSender) prompts() []promptMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []promptMsg
	for _, m := range s.msgs {
		if p, ok := m.(promptMsg); ok {
			out = append(out, p)
		}
	}
	return out
}

// pageBackend is every backend call the page makes.
type pageBackend interface {
	session.Backend
	appsync.Fetcher
	notifications.Backend
}

type nopBackend struct{}

func (nopBackend) Register(context.Context, string, string) (model.Identity, error) {
	return "u1", nil
}

func (nopBackend) Poll(context.Context, model.Identity) ([]model.Notification, error) {
	return nil, nil
}

func (nopBackend) History(context.Context, model.Identity) (*client.HistoryResponse, error) {
	return &client.HistoryResponse{}, nil
}
func (nopBackend) MarkRead(context.Context, model.Identity, string) error { return nil }
func (nopBackend) MarkAllRead(context.Context, model.Identity) error      { return nil }
func (nopBackend) ClearHistory(context.Context, model.Identity) error     { return nil }
func (nopBackend) SendTest(context.Context, model.Identity) error         { return nil }

type noPlatform struct{}

func (noPlatform) Supported(context.Context) bool { return false }

func newTestModel(t *testing.T) (Model, *Deps) {
	t.Helper()
	return newTestModelWith(t, nopBackend{})
}

func newTestModelWith(t *testing.T, b pageBackend) (Model, *Deps) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sess := session.New()
	s := store.NewStore(0)
	bridge := NewBridge()
	ch := appsync.New(appsync.Config{
		Name:     appsync.Foreground,
		Interval: time.Hour,
		Fetcher:  b,
		Identity: sess,
		Store:    s,
	})
	t.Cleanup(ch.Stop)
	svc := notifications.NewService(b, sess, s, notifications.WithConfirmer(bridge))
	deps := &Deps{
		Ctx:       ctx,
		Cancel:    cancel,
		Session:   sess,
		Registrar: session.NewRegistrar(b, sess, nil, 10*time.Millisecond),
		Channel:   ch,
		Store:     s,
		Service:   svc,
		Presenter: presenter.New(presenter.Config{Reader: svc, Lookup: s, Focuser: bridge}),
		Gate:      permission.NewGate(noPlatform{}, testutil.NewTestStore(t), bridge),
		Bridge:    bridge,
	}

	m := New(deps)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model), deps
}

func TestUpdate_StoreChangedRendersHistory(t *testing.T) {
	m, deps := newTestModel(t)

	deps.Store.Insert(model.Notification{ID: "1", Type: model.TypeEmail, Title: "Quarterly report"})
	updated, _ := m.Update(storeChangedMsg{})
	m = updated.(Model)

	assert.Equal(t, 1, m.unread)
	view := m.View()
	assert.Contains(t, view, "Quarterly report")
	assert.Contains(t, view, "[1 unread]")
}

func TestUpdate_InvalidCommandShowsBanner(t *testing.T) {
	m, _ := newTestModel(t)

	_, err := command.Parse("explode")
	updated, _ := m.Update(command.InvalidMsg{Input: "explode", Err: err})
	m = updated.(Model)

	require.NotNil(t, m.banner)
	assert.Contains(t, m.View(), "unknown command")
}

func TestExecute_RefreshBeforeRegistration(t *testing.T) {
	m, _ := newTestModel(t)

	updated, cmd := m.Update(command.RequestMsg{Request: command.Request{Kind: command.KindRefresh}})
	m = updated.(Model)

	assert.Nil(t, cmd)
	require.NotNil(t, m.banner)
	assert.True(t, strings.Contains(m.banner.text, "registering"))
}

func TestPromptFlow_ResolvesPendingAnswer(t *testing.T) {
	m, deps := newTestModel(t)
	sender := &recordingSender{}
	deps.Bridge.Attach(sender)

	answer := make(chan bool, 1)
	go func() {
		ok, err := deps.Bridge.Confirm(context.Background(), notifications.ConfirmClear)
		assert.NoError(t, err)
		answer <- ok
	}()

	require.Eventually(t, func() bool { return len(sender.prompts()) == 1 }, time.Second, 5*time.Millisecond)
	prompt := sender.prompts()[0]

	updated, _ := m.Update(prompt)
	m = updated.(Model)
	assert.Equal(t, ViewConfirm, m.currentView)
	assert.Contains(t, m.View(), "Clear the whole notification history")

	updated, _ = m.Update(confirm.ResultMsg{ID: prompt.id, Confirmed: true})
	m = updated.(Model)
	assert.Equal(t, ViewList, m.currentView)

	select {
	case ok := <-answer:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("confirm not resolved")
	}
}

func TestBridge_AskWithoutProgram(t *testing.T) {
	b := NewBridge()
	_, err := b.Ask(context.Background(), permission.Question)
	assert.ErrorIs(t, err, errNoProgram)
}

func TestBridge_AskCancelled(t *testing.T) {
	b := NewBridge()
	b.Attach(&recordingSender{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Ask(ctx, permission.Question)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleActionResult(t *testing.T) {
	m, _ := newTestModel(t)

	m = m.handleActionResult(actionResultMsg{op: "Clear history", err: notifications.ErrCancelled})
	assert.Equal(t, "Clear history cancelled.", m.banner.text)

	m = m.handleActionResult(actionResultMsg{op: "Mark read", err: session.ErrUnregistered})
	assert.Contains(t, m.banner.text, "Not registered")
}

func TestDetailView_FollowsStoreAndReturns(t *testing.T) {
	m, deps := newTestModel(t)

	deps.Store.Insert(model.Notification{ID: "7", Type: model.TypePaper, Title: "New paper", Message: "Sparse attention revisited"})
	updated, _ := m.Update(storeChangedMsg{})
	m = updated.(Model)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	m = updated.(Model)
	require.NotNil(t, cmd)

	updated, _ = m.Update(cmd())
	m = updated.(Model)
	assert.Equal(t, ViewDetail, m.currentView)
	assert.Contains(t, m.View(), "Sparse attention revisited")

	deps.Store.Clear()
	updated, _ = m.Update(storeChangedMsg{})
	m = updated.(Model)
	assert.Equal(t, ViewList, m.currentView)
}

func TestSettings_OpenAndCancel(t *testing.T) {
	m, deps := newTestModel(t)

	updated, _ := m.Update(command.RequestMsg{Request: command.Request{Kind: command.KindSettings}})
	m = updated.(Model)
	require.NotNil(t, m.banner)
	assert.Equal(t, ViewList, m.currentView)

	deps.Config = model.DefaultConfig()
	deps.ConfigPath = t.TempDir() + "/config.yaml"
	m.banner = nil

	updated, _ = m.Update(command.RequestMsg{Request: command.Request{Kind: command.KindSettings}})
	m = updated.(Model)
	assert.Equal(t, ViewSettings, m.currentView)

	// Keys go to the form, not to the palette.
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(":")})
	m = updated.(Model)
	assert.Equal(t, ViewSettings, m.currentView)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	require.NotNil(t, cmd)
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	assert.Equal(t, ViewList, m.currentView)
}

// flakyBackend fails the first registrations and records the order of
// every backend call.
type flakyBackend struct {
	nopBackend

	mu       gosync.Mutex
	failures int
	calls    []string
}

func (b *flakyBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *flakyBackend) callList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *flakyBackend) Register(context.Context, string, string) (model.Identity, error) {
	b.record("register")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return "", errors.New("backend down")
	}
	return "u1", nil
}

func (b *flakyBackend) Poll(context.Context, model.Identity) ([]model.Notification, error) {
	b.record("poll")
	return nil, nil
}

func (b *flakyBackend) History(context.Context, model.Identity) (*client.HistoryResponse, error) {
	b.record("history")
	return &client.HistoryResponse{}, nil
}

// runCmd executes cmd and every command of a resulting batch.
func runCmd(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	if batch, ok := cmd().(tea.BatchMsg); ok {
		for _, c := range batch {
			runCmd(c)
		}
	}
}

func TestRegistration_PollingWaitsForIdentity(t *testing.T) {
	b := &flakyBackend{failures: 2}
	m, deps := newTestModelWith(t, b)

	attempts := make(chan error, 8)
	deps.Registrar.OnAttempt = func(_ int, err error) { attempts <- err }

	done := make(chan tea.Msg, 1)
	go func() { done <- m.register()() }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-attempts:
			require.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("registration not retried")
		}
		assert.False(t, deps.Channel.Running())
		assert.False(t, deps.Session.Registered())
	}

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registration did not succeed")
	}
	require.IsType(t, registeredMsg{}, msg)
	assert.False(t, deps.Channel.Running())
	assert.NotContains(t, b.callList(), "poll")

	_, cmd := m.Update(msg)
	assert.False(t, deps.Channel.Running())

	runCmd(cmd)
	assert.True(t, deps.Channel.Running())
	require.Eventually(t, func() bool {
		for _, c := range b.callList() {
			if c == "poll" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	// History is loaded before the first poll.
	calls := b.callList()
	require.GreaterOrEqual(t, len(calls), 5)
	assert.Equal(t, []string{"register", "register", "register", "history", "poll"}, calls[:5])
}

func TestWorkerStatus_DelegatesAlerts(t *testing.T) {
	m, deps := newTestModel(t)

	updated, _ := m.Update(workerStatusMsg{checking: true})
	m = updated.(Model)
	assert.True(t, m.workerOnline)
	assert.True(t, deps.Presenter.AlertsDelegated())

	updated, _ = m.Update(workerStatusMsg{err: errors.New("no worker")})
	m = updated.(Model)
	assert.False(t, m.workerOnline)
	assert.False(t, deps.Presenter.AlertsDelegated())
}
