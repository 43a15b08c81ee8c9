package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotificationType is the category tag attached to a notification by the
// backend. The set is open-ended; unknown types fall back to defaults.
type NotificationType string

const (
	TypeEmail   NotificationType = "email"
	TypeEmails  NotificationType = "emails"
	TypePatent  NotificationType = "patent"
	TypePatents NotificationType = "patents"
	TypePaper   NotificationType = "paper"
	TypePapers  NotificationType = "papers"
	TypeAyudas  NotificationType = "ayudas"
	TypeTest    NotificationType = "test"
)

// DefaultIcon is shown for notification types without a dedicated icon.
const DefaultIcon = "🔔"

var typeIcons = map[NotificationType]string{
	TypeEmail:   "📧",
	TypeEmails:  "📧",
	TypePatent:  "🔬",
	TypePatents: "🔬",
	TypePaper:   "📚",
	TypePapers:  "📚",
	TypeAyudas:  "💶",
	TypeTest:    "🧪",
}

// Icon returns the display icon for the type.
func (t NotificationType) Icon() string {
	if icon, ok := typeIcons[t]; ok {
		return icon
	}
	return DefaultIcon
}

// Identity is the opaque token the backend issues on registration. It
// identifies this client instance for notification targeting.
type Identity string

// Short returns a truncated form of the identity for status displays.
func (id Identity) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8]) + "..."
}

// Notification is a single record in the notification history.
type Notification struct {
	// ID is the backend-assigned identifier. It is stable across
	// duplicate deliveries and is the dedup key of the store.
	ID string `json:"id"`

	// Type categorises the notification (email, patent, paper, ...).
	Type NotificationType `json:"type"`

	// Title is the short headline.
	Title string `json:"title"`

	// Message is the body text.
	Message string `json:"message"`

	// Data carries type-specific fields. A string "url" entry is used
	// for click-through.
	Data map[string]any `json:"data,omitempty"`

	// CreatedAt is when the backend created the notification.
	CreatedAt time.Time `json:"created_at"`

	// Read is set only through an explicit read action.
	Read bool `json:"read"`
}

// Tag returns the stable "{type}_{id}" key used to collapse repeated
// system alerts for the same notification.
func (n Notification) Tag() string {
	return fmt.Sprintf("%s_%s", n.Type, n.ID)
}

// URL returns the click-through link, or "" when the record has none.
func (n Notification) URL() string {
	if n.Data == nil {
		return ""
	}
	u, ok := n.Data["url"].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(u)
}

// Icon returns the display icon for the notification's type.
func (n Notification) Icon() string {
	return n.Type.Icon()
}

// wireNotification mirrors the backend payload. The backend sends integer
// ids and may name the creation time either created_at or timestamp.
type wireNotification struct {
	ID        json.RawMessage  `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt json.RawMessage  `json:"created_at,omitempty"`
	Timestamp json.RawMessage  `json:"timestamp,omitempty"`
	Read      bool             `json:"read"`
}

// UnmarshalJSON accepts numeric or string ids and several timestamp forms.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return fmt.Errorf("decoding notification id: %w", err)
	}

	raw := w.CreatedAt
	if len(raw) == 0 || string(raw) == "null" {
		raw = w.Timestamp
	}
	createdAt, err := decodeTime(raw)
	if err != nil {
		return fmt.Errorf("decoding notification %s time: %w", id, err)
	}

	*n = Notification{
		ID:        id,
		Type:      w.Type,
		Title:     w.Title,
		Message:   w.Message,
		Data:      w.Data,
		CreatedAt: createdAt,
		Read:      w.Read,
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if s == "" {
			return "", fmt.Errorf("empty id")
		}
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	return num.String(), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func decodeTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return time.Time{}, err
		}
		return epochTime(num)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return epochTime(json.Number(s))
}

// epochTime interprets values above 1e12 as milliseconds, seconds otherwise.
func epochTime(num json.Number) (time.Time, error) {
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised time %q", num.String())
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}
