package store

import (
	"context"
	"errors"

	"github.com/nhle/agent-notify/internal/model"
)

// ErrSettingNotFound is returned by GetSetting for unknown keys.
var ErrSettingNotFound = errors.New("setting not found")

// Snapshotter persists the last known notification history so it can be
// shown before the backend answers. The snapshot is advisory: a backend
// history load always overwrites it.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, items []model.Notification, unread int) error
	LoadSnapshot(ctx context.Context) ([]model.Notification, int, error)
}

// Settings is a small persistent key/value store for local decisions
// such as the desktop notification permission.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}
