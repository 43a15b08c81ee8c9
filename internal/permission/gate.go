// Package permission decides whether notifications may be surfaced as
// desktop alerts.
package permission

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/store"
)

// State is the desktop notification permission.
type State string

const (
	// Default means the user has not been asked yet.
	Default     State = "default"
	Granted     State = "granted"
	Denied      State = "denied"
	Unsupported State = "unsupported"
)

// settingKey is the settings entry holding the user's decision.
const settingKey = "desktop_permission"

// Warning texts surfaced to the user.
const (
	WarnUnsupported = "Desktop notifications are not available on this system; notifications will only appear in the history view."
	WarnBlocked     = "Desktop notifications are blocked. Run `agentnotify permission reset` to be asked again."
	WarnRejected    = "Desktop notification permission was declined."
)

// Platform reports whether the system can show desktop notifications.
type Platform interface {
	Supported(ctx context.Context) bool
}

// Prompter asks the user for consent.
type Prompter interface {
	Ask(ctx context.Context, question string) (bool, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, question string) (bool, error)

// Ask calls f.
func (f PrompterFunc) Ask(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// Question is the consent prompt shown to the user.
const Question = "Allow agentnotify to show desktop notifications?"

// Gate wraps the consent decision. The decision is persisted in the
// settings store, and the state is re-read on every call because the user
// may change it mid-session (e.g. `agentnotify permission reset`).
type Gate struct {
	platform Platform
	settings store.Settings
	prompter Prompter
	warn     func(string)
	logger   *zap.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithWarner sets the callback that surfaces dismissible warnings.
func WithWarner(fn func(string)) Option {
	return func(g *Gate) {
		g.warn = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		g.logger = l.Named("permission")
	}
}

// NewGate creates a gate. prompter may be nil, in which case Request never
// asks and leaves an undecided permission at Default.
func NewGate(p Platform, s store.Settings, prompter Prompter, opts ...Option) *Gate {
	g := &Gate{
		platform: p,
		settings: s,
		prompter: prompter,
		warn:     func(string) {},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current permission without prompting.
func (g *Gate) State(ctx context.Context) State {
	if g.platform == nil || !g.platform.Supported(ctx) {
		return Unsupported
	}

	v, err := g.settings.GetSetting(ctx, settingKey)
	if err != nil {
		if !errors.Is(err, store.ErrSettingNotFound) {
			g.logger.Warn("reading permission setting", zap.Error(err))
		}
		return Default
	}

	switch State(v) {
	case Granted:
		return Granted
	case Denied:
		return Denied
	default:
		return Default
	}
}

// Granted reports whether desktop alerts may be shown right now.
func (g *Gate) Granted(ctx context.Context) bool {
	return g.State(ctx) == Granted
}

// Request resolves the permission, prompting only when no decision exists.
// A denied permission is never re-prompted.
func (g *Gate) Request(ctx context.Context) (State, error) {
	switch st := g.State(ctx); st {
	case Unsupported:
		g.logger.Warn("desktop notifications unsupported")
		g.warn(WarnUnsupported)
		return Unsupported, nil
	case Denied:
		g.logger.Warn("desktop notifications previously denied")
		g.warn(WarnBlocked)
		return Denied, nil
	case Granted:
		return Granted, nil
	}

	if g.prompter == nil {
		return Default, nil
	}

	allowed, err := g.prompter.Ask(ctx, Question)
	if err != nil {
		return Default, fmt.Errorf("asking for notification permission: %w", err)
	}

	decision := Denied
	if allowed {
		decision = Granted
	}
	if err := g.settings.SetSetting(ctx, settingKey, string(decision)); err != nil {
		return Default, fmt.Errorf("saving notification permission: %w", err)
	}

	if decision == Denied {
		g.warn(WarnRejected)
	}
	g.logger.Info("notification permission decided", zap.String("state", string(decision)))
	return decision, nil
}

// Set records a decision without prompting.
func (g *Gate) Set(ctx context.Context, s State) error {
	if s != Granted && s != Denied {
		return fmt.Errorf("invalid permission %q", s)
	}
	return g.settings.SetSetting(ctx, settingKey, string(s))
}

// Reset forgets the decision so the next Request prompts again.
func (g *Gate) Reset(ctx context.Context) error {
	return g.settings.DeleteSetting(ctx, settingKey)
}

// StaticPrompter answers every prompt with a fixed value.
type StaticPrompter bool

// Ask returns the fixed answer.
func (p StaticPrompter) Ask(context.Context, string) (bool, error) {
	return bool(p), nil
}
