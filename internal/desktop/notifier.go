// Package desktop shows system alerts through the freedesktop.org
// notification service on the D-Bus session bus.
package desktop

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/godbus/dbus"
	"go.uber.org/zap"
)

const (
	busName      = "org.freedesktop.Notifications"
	busPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	busInterface = "org.freedesktop.Notifications"

	signalActionInvoked = busInterface + ".ActionInvoked"
	signalClosed        = busInterface + ".NotificationClosed"

	appName = "agentnotify"
)

// ErrUnavailable is returned when no notification service can be reached.
var ErrUnavailable = errors.New("desktop notifications unavailable")

// Action is a button on a system alert.
type Action struct {
	Key   string
	Label string
}

// Alert is one system notification.
type Alert struct {
	// ID is the notification record the alert belongs to. It is handed
	// back to the click handler.
	ID string

	Title string
	Body  string
	Icon  string

	// Tag collapses alerts: showing a tag that is already on screen
	// replaces the previous alert instead of stacking a new one.
	Tag string

	Data    map[string]any
	Actions []Action

	// Timeout closes the alert automatically. Zero leaves it to the server.
	Timeout time.Duration
}

// ActionHandler receives clicks. action is "default" when the alert body
// was clicked rather than a button.
type ActionHandler func(id, action string)

// bus is the subset of the notification service the Notifier drives.
type bus interface {
	Notify(replacesID uint32, icon, summary, body string, actions []string, hints map[string]dbus.Variant, timeout int32) (uint32, error)
	CloseNotification(id uint32) error
}

// Notifier shows alerts and routes their click events.
type Notifier struct {
	bus    bus
	conn   *dbus.Conn
	logger *zap.Logger

	mu      gosync.Mutex
	byTag   map[string]uint32
	shown   map[uint32]shownAlert
	timers  map[uint32]*time.Timer
	handler ActionHandler
}

type shownAlert struct {
	id  string
	tag string
}

func newNotifier(b bus, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		bus:    b,
		logger: logger.Named("desktop"),
		byTag:  make(map[string]uint32),
		shown:  make(map[uint32]shownAlert),
		timers: make(map[uint32]*time.Timer),
	}
}

// Connect attaches to the session bus. It fails with ErrUnavailable when
// there is no session bus or nobody owns the notification service.
func Connect(logger *zap.Logger) (*Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, busName).Store(&owned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !owned {
		return nil, fmt.Errorf("%w: %s has no owner", ErrUnavailable, busName)
	}

	n := newNotifier(&dbusBus{obj: conn.Object(busName, busPath)}, logger)
	n.conn = conn
	return n, nil
}

// Supported reports whether alerts can be shown.
func (n *Notifier) Supported(context.Context) bool {
	return n != nil && n.bus != nil
}

// OnAction sets the click handler.
func (n *Notifier) OnAction(fn ActionHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = fn
}

// Show displays a. An alert with the tag of one still on screen replaces it.
func (n *Notifier) Show(_ context.Context, a Alert) error {
	actions := make([]string, 0, 2+2*len(a.Actions))
	actions = append(actions, "default", "")
	for _, act := range a.Actions {
		actions = append(actions, act.Key, act.Label)
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}
	if cat, ok := a.Data["type"].(string); ok && cat != "" {
		hints["category"] = dbus.MakeVariant(cat)
	}

	n.mu.Lock()
	replaces := n.byTag[a.Tag]
	n.mu.Unlock()

	expire := int32(-1)
	if a.Timeout > 0 {
		expire = int32(a.Timeout / time.Millisecond)
	}

	id, err := n.bus.Notify(replaces, a.Icon, a.Title, a.Body, actions, hints, expire)
	if err != nil {
		return fmt.Errorf("showing alert %s: %w", a.Tag, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if replaces != 0 && replaces != id {
		n.forgetLocked(replaces)
	}
	if t, ok := n.timers[id]; ok {
		t.Stop()
	}
	n.byTag[a.Tag] = id
	n.shown[id] = shownAlert{id: a.ID, tag: a.Tag}

	if a.Timeout > 0 {
		n.timers[id] = time.AfterFunc(a.Timeout, func() {
			n.expire(id)
		})
	}

	n.logger.Debug("alert shown", zap.String("tag", a.Tag), zap.Uint32("dbus_id", id))
	return nil
}

// expire closes an alert whose timeout elapsed. Some notification servers
// ignore expire_timeout, so the close is requested explicitly.
func (n *Notifier) expire(id uint32) {
	n.mu.Lock()
	_, ok := n.shown[id]
	if ok {
		n.forgetLocked(id)
	}
	n.mu.Unlock()

	if !ok {
		return
	}
	if err := n.bus.CloseNotification(id); err != nil {
		n.logger.Debug("closing alert", zap.Uint32("dbus_id", id), zap.Error(err))
	}
}

func (n *Notifier) forgetLocked(id uint32) {
	s, ok := n.shown[id]
	if !ok {
		return
	}
	delete(n.shown, id)
	if n.byTag[s.tag] == id {
		delete(n.byTag, s.tag)
	}
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
}

// Listen routes ActionInvoked signals to the click handler until ctx is
// done.
func (n *Notifier) Listen(ctx context.Context) error {
	if n.conn == nil {
		<-ctx.Done()
		return nil
	}

	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		rule := fmt.Sprintf("type='signal',interface='%s',member='%s'", busInterface, member)
		if call := n.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
			return fmt.Errorf("subscribing to %s: %w", member, call.Err)
		}
	}

	signals := make(chan *dbus.Signal, 16)
	n.conn.Signal(signals)
	defer n.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			n.handleSignal(sig)
		}
	}
}

func (n *Notifier) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) == 0 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	switch sig.Name {
	case signalActionInvoked:
		if len(sig.Body) < 2 {
			return
		}
		action, _ := sig.Body[1].(string)

		n.mu.Lock()
		s, known := n.shown[id]
		n.forgetLocked(id)
		handler := n.handler
		n.mu.Unlock()

		if !known {
			return
		}
		go func() {
			if err := n.bus.CloseNotification(id); err != nil {
				n.logger.Debug("closing clicked alert", zap.Error(err))
			}
		}()
		if handler != nil {
			handler(s.id, action)
		}

	case signalClosed:
		n.mu.Lock()
		n.forgetLocked(id)
		n.mu.Unlock()
	}
}

// Close stops pending expiry timers.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}

type dbusBus struct {
	obj dbus.BusObject
}

func (b *dbusBus) Notify(replacesID uint32, icon, summary, body string, actions []string, hints map[string]dbus.Variant, timeout int32) (uint32, error) {
	var id uint32
	call := b.obj.Call(busInterface+".Notify", 0,
		appName, replacesID, icon, summary, body, actions, hints, timeout)
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (b *dbusBus) CloseNotification(id uint32) error {
	return b.obj.Call(busInterface+".CloseNotification", 0, id).Err
}

// Unsupported stands in for the Notifier when Connect fails.
type Unsupported struct{}

// Supported always reports false.
func (Unsupported) Supported(context.Context) bool { return false }
