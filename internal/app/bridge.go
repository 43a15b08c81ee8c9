package app

import (
	"context"
	"errors"
	gosync "sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/theme"
)

// errNoProgram is returned by prompts issued before the UI is running.
var errNoProgram = errors.New("terminal UI not running")

// sender is satisfied by *tea.Program.
type sender interface {
	Send(msg tea.Msg)
}

// promptMsg asks the UI to show a yes/no question and answer on reply.
type promptMsg struct {
	id          int
	title       string
	question    string
	affirmative string
	negative    string
}

// bannerMsg shows a dismissible one-line banner.
type bannerMsg struct {
	text  string
	level string
}

// storeChangedMsg is sent after every store mutation.
type storeChangedMsg struct{}

// presentedMsg is sent for every notification the presenter rendered.
type presentedMsg struct {
	n model.Notification
}

// focusMsg asks the UI to bring the history to the front.
type focusMsg struct{}

// Bridge lets background goroutines (polling, permission checks, service
// calls running inside tea.Cmds) talk to the running Bubble Tea program.
// It implements the prompt, confirm, warning, focus and history-sink hooks
// of the lower layers.
type Bridge struct {
	mu      gosync.Mutex
	program sender
	nextID  int
	pending map[int]chan bool
}

// NewBridge creates a detached bridge.
func NewBridge() *Bridge {
	return &Bridge{pending: make(map[int]chan bool)}
}

// Attach connects the bridge to a running program.
func (b *Bridge) Attach(p sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.program = p
}

func (b *Bridge) send(msg tea.Msg) bool {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()

	if p == nil {
		return false
	}
	p.Send(msg)
	return true
}

func (b *Bridge) ask(ctx context.Context, msg promptMsg) (bool, error) {
	reply := make(chan bool, 1)

	b.mu.Lock()
	if b.program == nil {
		b.mu.Unlock()
		return false, errNoProgram
	}
	b.nextID++
	msg.id = b.nextID
	b.pending[msg.id] = reply
	p := b.program
	b.mu.Unlock()

	p.Send(msg)

	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, msg.id)
		b.mu.Unlock()
		return false, ctx.Err()
	}
}

// resolve delivers the answer to a pending prompt.
func (b *Bridge) resolve(id int, ok bool) {
	b.mu.Lock()
	reply, found := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()

	if found {
		reply <- ok
	}
}

// Ask implements permission.Prompter.
func (b *Bridge) Ask(ctx context.Context, question string) (bool, error) {
	return b.ask(ctx, promptMsg{
		title:       "Desktop notifications",
		question:    question,
		affirmative: "Allow",
		negative:    "Block",
	})
}

// Confirm implements notifications.Confirmer.
func (b *Bridge) Confirm(ctx context.Context, question string) (bool, error) {
	return b.ask(ctx, promptMsg{
		title:       "Confirm",
		question:    question,
		affirmative: "Yes",
		negative:    "No",
	})
}

// Warn shows a warning banner.
func (b *Bridge) Warn(text string) {
	b.send(bannerMsg{text: text, level: theme.BannerWarning})
}

// Focus implements presenter.Focuser.
func (b *Bridge) Focus() {
	b.send(focusMsg{})
}

// Prepend implements presenter.HistorySink. The history itself is rendered
// from the store; this only announces the arrival.
func (b *Bridge) Prepend(n model.Notification) {
	b.send(presentedMsg{n: n})
}

// StoreChanged forwards store mutations to the UI.
func (b *Bridge) StoreChanged() {
	b.send(storeChangedMsg{})
}
