package worker

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/session"
	"github.com/nhle/agent-notify/internal/sync"
)

// Server answers control messages from UIs and runs the background polling
// channel. It keeps its own session and store; the UI and the worker share
// nothing but messages.
type Server struct {
	nc      *nats.Conn
	channel *sync.Channel
	session *session.Session
	metrics *Metrics
	logger  *zap.Logger

	mu  gosync.Mutex
	ctx context.Context
}

// NewServer creates a worker server. It takes over ch's OnCycle hook to
// record metrics and forward new notifications to the UIs.
func NewServer(nc *nats.Conn, ch *sync.Channel, sess *session.Session, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		nc:      nc,
		channel: ch,
		session: sess,
		metrics: metrics,
		logger:  logger.Named("worker"),
		ctx:     context.Background(),
	}
	ch.OnCycle = s.observeCycle
	return s
}

// Serve handles control messages until ctx is done, then stops polling.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	sub, err := s.nc.Subscribe(ControlSubject, s.handle)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", ControlSubject, err)
	}
	if err := s.nc.Flush(); err != nil {
		return fmt.Errorf("flushing subscription: %w", err)
	}
	s.logger.Info("worker ready", zap.String("subject", ControlSubject))

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		s.logger.Debug("unsubscribing", zap.Error(err))
	}
	s.channel.Stop()
	s.session.Dispose()
	return nil
}

// Polling reports whether the background channel is running.
func (s *Server) Polling() bool {
	return s.channel.Running()
}

func (s *Server) handle(msg *nats.Msg) {
	var m Message
	ack := Ack{Success: true}

	if err := json.Unmarshal(msg.Data, &m); err != nil {
		ack.Success = false
		ack.Error = fmt.Sprintf("decoding message: %v", err)
	} else {
		ack.CorrelationID = m.CorrelationID
		if err := s.apply(m); err != nil {
			ack.Success = false
			ack.Error = err.Error()
		}
	}

	outcome := "ok"
	if !ack.Success {
		outcome = "error"
		s.logger.Warn("control message failed",
			zap.String("type", string(m.Type)),
			zap.String("error", ack.Error),
		)
	}
	s.metrics.ControlMessages.WithLabelValues(string(m.Type), outcome).Inc()

	data, err := json.Marshal(ack)
	if err != nil {
		s.logger.Error("encoding ack", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("responding", zap.Error(err))
	}
}

func (s *Server) apply(m Message) error {
	switch m.Type {
	case StartCheck:
		if m.UserID == "" {
			return fmt.Errorf("userId is required")
		}
		s.session.SetIdentity(model.Identity(m.UserID))
		s.metrics.IdentityUpdates.Inc()

		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		s.channel.Start(ctx)
		s.session.MarkPolling()
		s.logger.Info("background check started", zap.String("user", model.Identity(m.UserID).Short()))

	case StopCheck:
		s.channel.Stop()
		s.logger.Info("background check stopped")

	case UpdateUserID:
		if m.UserID == "" {
			return fmt.Errorf("userId is required")
		}
		s.session.SetIdentity(model.Identity(m.UserID))
		s.metrics.IdentityUpdates.Inc()
		s.logger.Info("user id updated", zap.String("user", model.Identity(m.UserID).Short()))

	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

func (s *Server) observeCycle(res sync.CycleResult) {
	if res.Err != nil {
		s.metrics.PollCycles.WithLabelValues("error").Inc()
		return
	}
	s.metrics.PollCycles.WithLabelValues("ok").Inc()
	s.metrics.NotificationsFetched.Add(float64(res.Fetched))
	s.metrics.NotificationsNew.Add(float64(len(res.Inserted)))

	if len(res.Inserted) == 0 {
		return
	}
	s.publish(Event{Type: NotificationsDelivered, Notifications: res.Inserted})
}

// AlertShown counts a desktop alert.
func (s *Server) AlertShown(model.Notification) {
	s.metrics.AlertsShown.Inc()
}

// Clicked tells the UIs that an alert was clicked.
func (s *Server) Clicked(action string, n model.Notification) {
	data := map[string]any{
		"notificationId": n.ID,
		"type":           string(n.Type),
	}
	if n.Data != nil {
		data["data"] = n.Data
	}
	s.publish(Event{Type: NotificationClicked, Action: action, NotificationData: data})
}

func (s *Server) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encoding event", zap.Error(err))
		return
	}
	if err := s.nc.Publish(EventsSubject, data); err != nil {
		s.logger.Warn("publishing event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
