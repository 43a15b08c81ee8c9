package client

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/nhle/agent-notify/internal/model"
)

// UserIDHeader carries the caller's identity on per-user calls.
const UserIDHeader = "X-User-ID"

// Paths holds the endpoint path templates. Templates containing %s take
// the (escaped) user or notification id.
type Paths struct {
	Register    string
	Poll        string
	History     string
	MarkRead    string
	MarkAllRead string
	Clear       string
	Test        string
}

// DefaultPaths returns the backend's standard notification routes.
func DefaultPaths() Paths {
	return Paths{
		Register:    "/notifications/register",
		Poll:        "/notifications/user/%s",
		History:     "/notifications/user/%s/history",
		MarkRead:    "/notifications/mark-read/%s",
		MarkAllRead: "/notifications/mark-all-read",
		Clear:       "/notifications/clear-history",
		Test:        "/notifications/user/%s/test",
	}
}

func pathf(template, id string) string {
	return fmt.Sprintf(template, url.PathEscape(id))
}

// RegisterRequest is the body of the registration call.
type RegisterRequest struct {
	DeviceName string `json:"device_name"`
	DeviceID   string `json:"device_id"`
}

// RegisterResponse is returned by the registration call.
type RegisterResponse struct {
	Success *bool  `json:"success"`
	UserID  string `json:"user_id"`
	Error   string `json:"error,omitempty"`
}

// PollResponse is returned by the poll call. Records that fail to decode
// are left out of Notifications and reported in Skipped.
type PollResponse struct {
	Success       *bool                `json:"success"`
	Notifications []model.Notification `json:"-"`
	Skipped       []error              `json:"-"`
	Error         string               `json:"error,omitempty"`
}

// UnmarshalJSON decodes the notifications one record at a time.
func (r *PollResponse) UnmarshalJSON(data []byte) error {
	var w struct {
		Success       *bool             `json:"success"`
		Notifications []json.RawMessage `json:"notifications"`
		Error         string            `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	items, skipped := decodeBatch(w.Notifications)
	*r = PollResponse{Success: w.Success, Notifications: items, Skipped: skipped, Error: w.Error}
	return nil
}

// HistoryResponse is returned by the history call. Records that fail to
// decode are left out of Notifications and reported in Skipped.
type HistoryResponse struct {
	Notifications []model.Notification `json:"-"`
	UnreadCount   int                  `json:"unread_count"`
	Skipped       []error              `json:"-"`
}

// UnmarshalJSON decodes the notifications one record at a time.
func (r *HistoryResponse) UnmarshalJSON(data []byte) error {
	var w struct {
		Notifications []json.RawMessage `json:"notifications"`
		UnreadCount   int               `json:"unread_count"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	items, skipped := decodeBatch(w.Notifications)
	*r = HistoryResponse{Notifications: items, UnreadCount: w.UnreadCount, Skipped: skipped}
	return nil
}

// decodeBatch keeps every record that decodes. The backend marks a batch
// delivered once fetched, so one bad record must not cost the others.
func decodeBatch(raw []json.RawMessage) ([]model.Notification, []error) {
	items := make([]model.Notification, 0, len(raw))
	var skipped []error
	for i, r := range raw {
		var n model.Notification
		if err := json.Unmarshal(r, &n); err != nil {
			skipped = append(skipped, fmt.Errorf("%w: record %d: %v", ErrMalformedPayload, i, err))
			continue
		}
		items = append(items, n)
	}
	return items, skipped
}

// UserRequest is the body of calls that only name the caller.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// AckResponse is the generic {success} envelope.
type AckResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a AckResponse) check(op string) error {
	if a.Success != nil && !*a.Success {
		reason := a.Error
		if reason == "" {
			reason = a.Message
		}
		return fmt.Errorf("%w: %s: %s", ErrRejected, op, reason)
	}
	return nil
}
