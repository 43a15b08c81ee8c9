// Package presenter surfaces newly merged notifications in the history
// view and, when permitted, as desktop alerts.
package presenter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/desktop"
	"github.com/nhle/agent-notify/internal/model"
)

// Alert actions.
const (
	ActionView    = "view"
	ActionDismiss = "dismiss"
	// ActionDefault is reported when the alert body itself is clicked.
	ActionDefault = "default"
)

// DefaultAlertTimeout closes system alerts that nobody interacts with.
const DefaultAlertTimeout = 10 * time.Second

// HistorySink receives every presented notification for the in-app view.
type HistorySink interface {
	Prepend(n model.Notification)
}

// SinkFunc adapts a function to HistorySink.
type SinkFunc func(n model.Notification)

// Prepend calls f.
func (f SinkFunc) Prepend(n model.Notification) { f(n) }

// Alerter shows system alerts.
type Alerter interface {
	Show(ctx context.Context, a desktop.Alert) error
}

// Gate reports the current alert permission.
type Gate interface {
	Granted(ctx context.Context) bool
}

// Opener opens a click-through link.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// Focuser brings the application to the foreground.
type Focuser interface {
	Focus()
}

// Reader marks notifications read.
type Reader interface {
	MarkRead(ctx context.Context, id string) error
}

// Lookup finds a notification by id.
type Lookup interface {
	Get(id string) (model.Notification, bool)
}

// Config wires a Presenter. Sink, Alerter, Focuser and Reader are optional.
type Config struct {
	Sink         HistorySink
	Alerter      Alerter
	Gate         Gate
	Opener       Opener
	Focuser      Focuser
	Reader       Reader
	Lookup       Lookup
	AlertTimeout time.Duration
	Logger       *zap.Logger
}

// Presenter renders notifications and handles clicks on them.
type Presenter struct {
	sink    HistorySink
	alerter Alerter
	gate    Gate
	opener  Opener
	focuser Focuser
	reader  Reader
	lookup  Lookup
	timeout time.Duration
	logger  *zap.Logger

	delegated atomic.Bool

	// OnAlert is called after a system alert was shown.
	OnAlert func(n model.Notification)
}

// New creates a Presenter.
func New(cfg Config) *Presenter {
	p := &Presenter{
		sink:    cfg.Sink,
		alerter: cfg.Alerter,
		gate:    cfg.Gate,
		opener:  cfg.Opener,
		focuser: cfg.Focuser,
		reader:  cfg.Reader,
		lookup:  cfg.Lookup,
		timeout: cfg.AlertTimeout,
		logger:  cfg.Logger,
	}
	if p.opener == nil {
		p.opener = BrowserOpener{}
	}
	if p.timeout <= 0 {
		p.timeout = DefaultAlertTimeout
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("presenter")
	return p
}

// Present renders n in the history view and, if the permission is granted
// at this moment, as a system alert. A failing alert is logged; the history
// entry stands regardless.
func (p *Presenter) Present(ctx context.Context, n model.Notification) {
	if p.sink != nil {
		p.sink.Prepend(n)
	}

	if p.alerter == nil || p.gate == nil || p.delegated.Load() || !p.gate.Granted(ctx) {
		return
	}

	if err := p.alerter.Show(ctx, AlertFor(n, p.timeout)); err != nil {
		p.logger.Warn("showing alert", zap.String("id", n.ID), zap.Error(err))
		return
	}
	if p.OnAlert != nil {
		p.OnAlert(n)
	}
}

// DelegateAlerts hands system alerts to another process while on. The page
// turns it on while the background worker polls, so a record both fetch
// raises one alert. History entries are unaffected.
func (p *Presenter) DelegateAlerts(on bool) {
	if p.delegated.Swap(on) != on {
		p.logger.Debug("alert delegation changed", zap.Bool("delegated", on))
	}
}

// AlertsDelegated reports whether system alerts are handed off.
func (p *Presenter) AlertsDelegated() bool {
	return p.delegated.Load()
}

// AlertFor builds the system alert for n.
func AlertFor(n model.Notification, timeout time.Duration) desktop.Alert {
	data := map[string]any{
		"notificationId": n.ID,
		"type":           string(n.Type),
	}
	if !n.CreatedAt.IsZero() {
		data["timestamp"] = n.CreatedAt.Format(time.RFC3339)
	}
	if n.Data != nil {
		data["data"] = n.Data
	}

	return desktop.Alert{
		ID:    n.ID,
		Title: fmt.Sprintf("%s %s", n.Icon(), n.Title),
		Body:  n.Message,
		Icon:  n.Icon(),
		Tag:   n.Tag(),
		Data:  data,
		Actions: []desktop.Action{
			{Key: ActionView, Label: "View"},
			{Key: ActionDismiss, Label: "Dismiss"},
		},
		Timeout: timeout,
	}
}

// Click handles an interaction with the alert of notification id. Dismiss
// only marks it read. Any other action opens the notification's link, or
// focuses the application when it has none, and marks it read.
func (p *Presenter) Click(ctx context.Context, id, action string) error {
	if action != ActionDismiss {
		var n model.Notification
		var found bool
		if p.lookup != nil {
			n, found = p.lookup.Get(id)
		}

		if url := n.URL(); found && url != "" {
			if err := p.opener.Open(ctx, url); err != nil {
				p.logger.Warn("opening link", zap.String("url", url), zap.Error(err))
			}
		} else if p.focuser != nil {
			p.focuser.Focus()
		}
	}

	if p.reader == nil {
		return nil
	}
	if err := p.reader.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("marking %s read after click: %w", id, err)
	}
	return nil
}

// BrowserOpener opens links with the platform's default handler.
type BrowserOpener struct{}

// Open launches url.
func (BrowserOpener) Open(_ context.Context, url string) error {
	return browser.OpenURL(url)
}
