package worker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/session"
	"github.com/nhle/agent-notify/internal/store"
	"github.com/nhle/agent-notify/internal/sync"
	"github.com/nhle/agent-notify/internal/worker"
)

func startBus(t *testing.T) *natsserver.Server {
	t.Helper()

	srv, err := worker.StartBus("127.0.0.1", -1)
	require.NoError(t, err)

	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv
}

func connect(t *testing.T, srv *natsserver.Server) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

type fetcher struct {
	mu    gosync.Mutex
	items []model.Notification
	ids   []model.Identity
}

func (f *fetcher) Poll(_ context.Context, id model.Identity) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	items := f.items
	f.items = nil
	return items, nil
}

func (f *fetcher) identities() []model.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Identity(nil), f.ids...)
}

type harness struct {
	server  *worker.Server
	client  *worker.Client
	session *session.Session
	fetcher *fetcher
	metrics *worker.Metrics
}

func newHarness(t *testing.T, items ...model.Notification) *harness {
	t.Helper()

	srv := startBus(t)
	sess := session.New()
	f := &fetcher{items: items}
	ch := sync.New(sync.Config{
		Name:     sync.Background,
		Interval: time.Hour,
		Fetcher:  f,
		Identity: sess,
		Store:    store.NewStore(0),
	})
	metrics := worker.NewMetrics()
	w := worker.NewServer(connect(t, srv), ch, sess, metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c := worker.NewClient(connect(t, srv), time.Second, nil)

	// Wait until the control subscription is live.
	require.Eventually(t, func() bool {
		return c.StopCheck(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)

	return &harness{server: w, client: c, session: sess, fetcher: f, metrics: metrics}
}

func TestStartCheck_PollsAndBroadcastsDelivered(t *testing.T) {
	h := newHarness(t, model.Notification{ID: "42", Type: model.TypeEmail, Title: "hi"})

	events := make(chan worker.Event, 4)
	sub, err := h.client.Subscribe(func(ev worker.Event) { events <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, h.client.StartCheck(context.Background(), "abc123"))
	assert.Equal(t, model.Identity("abc123"), h.session.Identity())
	assert.Equal(t, session.StatePolling, h.session.State())

	select {
	case ev := <-events:
		assert.Equal(t, worker.NotificationsDelivered, ev.Type)
		require.Len(t, ev.Notifications, 1)
		assert.Equal(t, "42", ev.Notifications[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery event")
	}

	assert.True(t, h.server.Polling())
	assert.Equal(t, []model.Identity{"abc123"}, h.fetcher.identities())

	require.NoError(t, h.client.StopCheck(context.Background()))
	assert.False(t, h.server.Polling())
}

func TestUpdateUserID(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.client.UpdateUserID(context.Background(), "u-2"))
	assert.Equal(t, model.Identity("u-2"), h.session.Identity())
	assert.False(t, h.server.Polling())
}

func TestSend_RejectsMissingUserID(t *testing.T) {
	h := newHarness(t)

	err := h.client.StartCheck(context.Background(), "")
	assert.ErrorIs(t, err, worker.ErrRejected)

	err = h.client.Send(context.Background(), worker.Message{Type: "BOGUS"})
	assert.ErrorIs(t, err, worker.ErrRejected)
}

func TestClicked_Broadcast(t *testing.T) {
	h := newHarness(t)

	events := make(chan worker.Event, 1)
	sub, err := h.client.Subscribe(func(ev worker.Event) { events <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	h.server.Clicked("view", model.Notification{ID: "7", Type: model.TypePaper, Data: map[string]any{"url": "https://example.com"}})

	select {
	case ev := <-events:
		assert.Equal(t, worker.NotificationClicked, ev.Type)
		assert.Equal(t, "view", ev.Action)
		assert.Equal(t, "7", ev.NotificationData["notificationId"])
	case <-time.After(2 * time.Second):
		t.Fatal("no click event")
	}
}

func TestSend_NoWorker(t *testing.T) {
	srv := startBus(t)
	c := worker.NewClient(connect(t, srv), 200*time.Millisecond, nil)

	assert.ErrorIs(t, c.StopCheck(context.Background()), worker.ErrNoWorker)
}

func TestSend_Timeout(t *testing.T) {
	srv := startBus(t)
	silent := connect(t, srv)
	sub, err := silent.Subscribe(worker.ControlSubject, func(*nats.Msg) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, silent.Flush())

	c := worker.NewClient(connect(t, srv), 50*time.Millisecond, nil)
	assert.ErrorIs(t, c.StopCheck(context.Background()), worker.ErrTimeout)
}

func TestSend_CorrelationMismatch(t *testing.T) {
	srv := startBus(t)
	liar := connect(t, srv)
	sub, err := liar.Subscribe(worker.ControlSubject, func(m *nats.Msg) {
		data, _ := json.Marshal(worker.Ack{CorrelationID: "other", Success: true})
		_ = m.Respond(data)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, liar.Flush())

	c := worker.NewClient(connect(t, srv), time.Second, nil)
	err = c.StopCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "correlation id")
}

func TestHTTPServer_HealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.UpdateUserID(context.Background(), "abcdefghijkl"))

	api := worker.NewHTTPServer(h.server, h.metrics, zap.NewNop())

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health worker.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "abcdefgh...", health.User)

	rec = httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentnotify_control_messages_total")
	assert.Contains(t, rec.Body.String(), "agentnotify_identity_updates_total 1")
}
