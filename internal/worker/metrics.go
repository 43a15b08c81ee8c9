package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	PollCycles           *prometheus.CounterVec
	NotificationsFetched prometheus.Counter
	NotificationsNew     prometheus.Counter
	AlertsShown          prometheus.Counter
	ControlMessages      *prometheus.CounterVec
	IdentityUpdates      prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentnotify",
			Name:      "poll_cycles_total",
			Help:      "Poll cycles run by the background channel, by result.",
		}, []string{"result"}),
		NotificationsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentnotify",
			Name:      "notifications_fetched_total",
			Help:      "Notifications returned by the backend.",
		}),
		NotificationsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentnotify",
			Name:      "notifications_inserted_total",
			Help:      "Notifications that were new to the worker's store.",
		}),
		AlertsShown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentnotify",
			Name:      "alerts_shown_total",
			Help:      "Desktop alerts shown.",
		}),
		ControlMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentnotify",
			Name:      "control_messages_total",
			Help:      "Control messages handled, by type and outcome.",
		}, []string{"type", "outcome"}),
		IdentityUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentnotify",
			Name:      "identity_updates_total",
			Help:      "Identities handed over by the page. The worker never registers itself.",
		}),
	}

	m.Registry.MustRegister(
		m.PollCycles,
		m.NotificationsFetched,
		m.NotificationsNew,
		m.AlertsShown,
		m.ControlMessages,
		m.IdentityUpdates,
	)
	return m
}
