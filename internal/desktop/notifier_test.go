package desktop

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/godbus/dbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifyCall struct {
	replaces uint32
	summary  string
	body     string
	actions  []string
	timeout  int32
}

type fakeBus struct {
	mu     gosync.Mutex
	nextID uint32
	calls  []notifyCall
	closed []uint32
	err    error
}

func (b *fakeBus) Notify(replacesID uint32, _, summary, body string, actions []string, _ map[string]dbus.Variant, timeout int32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.calls = append(b.calls, notifyCall{replacesID, summary, body, actions, timeout})
	if replacesID != 0 {
		return replacesID, nil
	}
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBus) CloseNotification(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, id)
	return nil
}

func (b *fakeBus) closedIDs() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint32(nil), b.closed...)
}

func viewAlert(id, tag string) Alert {
	return Alert{
		ID:      id,
		Title:   "📧 New mail",
		Body:    "hello",
		Tag:     tag,
		Actions: []Action{{Key: "view", Label: "View"}, {Key: "dismiss", Label: "Dismiss"}},
	}
}

func TestShow_SameTagReplaces(t *testing.T) {
	b := &fakeBus{}
	n := newNotifier(b, nil)

	require.NoError(t, n.Show(context.Background(), viewAlert("1", "email_1")))
	require.NoError(t, n.Show(context.Background(), viewAlert("1", "email_1")))
	require.NoError(t, n.Show(context.Background(), viewAlert("2", "email_2")))

	require.Len(t, b.calls, 3)
	assert.Equal(t, uint32(0), b.calls[0].replaces)
	assert.Equal(t, uint32(1), b.calls[1].replaces)
	assert.Equal(t, uint32(0), b.calls[2].replaces)
	assert.Equal(t, []string{"default", "", "view", "View", "dismiss", "Dismiss"}, b.calls[0].actions)
	assert.Equal(t, int32(-1), b.calls[0].timeout)
}

func TestShow_Error(t *testing.T) {
	n := newNotifier(&fakeBus{err: errors.New("boom")}, nil)
	assert.Error(t, n.Show(context.Background(), viewAlert("1", "email_1")))
}

func TestShow_TimeoutClosesAlert(t *testing.T) {
	b := &fakeBus{}
	n := newNotifier(b, nil)
	defer n.Close()

	a := viewAlert("1", "email_1")
	a.Timeout = 20 * time.Millisecond
	require.NoError(t, n.Show(context.Background(), a))
	assert.Equal(t, int32(20), b.calls[0].timeout)

	assert.Eventually(t, func() bool {
		return len(b.closedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	// Closed alerts no longer collapse new ones with the same tag.
	require.NoError(t, n.Show(context.Background(), viewAlert("1", "email_1")))
	assert.Equal(t, uint32(0), b.calls[1].replaces)
}

func TestHandleSignal_RoutesClick(t *testing.T) {
	b := &fakeBus{}
	n := newNotifier(b, nil)

	var gotID, gotAction string
	n.OnAction(func(id, action string) {
		gotID, gotAction = id, action
	})

	require.NoError(t, n.Show(context.Background(), viewAlert("42", "email_42")))

	n.handleSignal(&dbus.Signal{
		Name: signalActionInvoked,
		Body: []interface{}{uint32(1), "view"},
	})
	assert.Equal(t, "42", gotID)
	assert.Equal(t, "view", gotAction)

	// A second click for the same alert is ignored once handled.
	gotID = ""
	n.handleSignal(&dbus.Signal{
		Name: signalActionInvoked,
		Body: []interface{}{uint32(1), "view"},
	})
	assert.Empty(t, gotID)
}

func TestHandleSignal_IgnoresUnknownAndClosed(t *testing.T) {
	n := newNotifier(&fakeBus{}, nil)

	called := false
	n.OnAction(func(string, string) { called = true })

	require.NoError(t, n.Show(context.Background(), viewAlert("7", "test_7")))
	n.handleSignal(&dbus.Signal{Name: signalClosed, Body: []interface{}{uint32(1), uint32(2)}})
	n.handleSignal(&dbus.Signal{Name: signalActionInvoked, Body: []interface{}{uint32(1), "view"}})
	n.handleSignal(&dbus.Signal{Name: signalActionInvoked, Body: []interface{}{uint32(99), "view"}})
	n.handleSignal(&dbus.Signal{Name: signalActionInvoked, Body: []interface{}{"bad"}})
	n.handleSignal(nil)

	assert.False(t, called)
}

func TestSupported(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Supported(context.Background()))
	assert.True(t, newNotifier(&fakeBus{}, nil).Supported(context.Background()))
}
