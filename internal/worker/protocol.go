// Package worker implements the background notification worker and the
// message protocol the terminal UI uses to drive it.
package worker

import (
	"errors"

	"github.com/nhle/agent-notify/internal/model"
)

// NATS subjects.
const (
	ControlSubject = "agentnotify.worker.control"
	EventsSubject  = "agentnotify.worker.events"
)

// MessageType names a control message or broadcast event.
type MessageType string

const (
	StartCheck   MessageType = "START_NOTIFICATION_CHECK"
	StopCheck    MessageType = "STOP_NOTIFICATION_CHECK"
	UpdateUserID MessageType = "UPDATE_USER_ID"

	NotificationClicked    MessageType = "NOTIFICATION_CLICKED"
	NotificationsDelivered MessageType = "NOTIFICATIONS_DELIVERED"
)

var (
	// ErrTimeout is returned when the worker does not answer in time.
	ErrTimeout = errors.New("worker did not respond in time")

	// ErrNoWorker is returned when no worker is listening.
	ErrNoWorker = errors.New("no worker running")

	// ErrRejected is returned when the worker answered success=false.
	ErrRejected = errors.New("worker rejected message")
)

// Message is a control message sent to the worker.
type Message struct {
	Type          MessageType `json:"type"`
	UserID        string      `json:"userId,omitempty"`
	CorrelationID string      `json:"correlationId"`
}

// Ack is the worker's reply to a Message.
type Ack struct {
	CorrelationID string `json:"correlationId"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// Event is broadcast by the worker to every connected UI.
type Event struct {
	Type MessageType `json:"type"`

	// Action and NotificationData are set for NOTIFICATION_CLICKED.
	Action           string         `json:"action,omitempty"`
	NotificationData map[string]any `json:"notificationData,omitempty"`

	// Notifications is set for NOTIFICATIONS_DELIVERED.
	Notifications []model.Notification `json:"notifications,omitempty"`
}
