// Package notifications implements the user-driven read-state mutations
// and history loading on top of the backend client and the local store.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/client"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/store"
)

// ErrCancelled is returned when the user declines a confirmation.
var ErrCancelled = errors.New("cancelled")

// Confirmation questions.
const (
	ConfirmMarkAll = "Mark all notifications as read?"
	ConfirmClear   = "Clear the whole notification history? This cannot be undone."
)

// DefaultTestRefreshDelay is how long SendTest waits before refreshing so
// the backend has time to enqueue the test notification.
const DefaultTestRefreshDelay = 2 * time.Second

// Backend is the subset of the REST client the service calls.
type Backend interface {
	History(ctx context.Context, id model.Identity) (*client.HistoryResponse, error)
	MarkRead(ctx context.Context, id model.Identity, notificationID string) error
	MarkAllRead(ctx context.Context, id model.Identity) error
	ClearHistory(ctx context.Context, id model.Identity) error
	SendTest(ctx context.Context, id model.Identity) error
}

// IdentitySource yields the registered identity or session.ErrUnregistered.
type IdentitySource interface {
	RequireIdentity() (model.Identity, error)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// AlwaysConfirm accepts every confirmation. It backs the CLI's --yes flag.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// Refresher triggers an out-of-band poll.
type Refresher interface {
	Refresh()
}

// Service performs read-state changes. Local state only changes after the
// backend confirmed the change.
type Service struct {
	backend   Backend
	identity  IdentitySource
	store     *store.Store
	snapshot  store.Snapshotter
	confirmer Confirmer
	refresher Refresher
	logger    *zap.Logger

	testRefreshDelay time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithSnapshot persists the store after every successful change.
func WithSnapshot(s store.Snapshotter) Option {
	return func(svc *Service) { svc.snapshot = s }
}

// WithConfirmer sets the confirmation prompt for MarkAllRead and
// ClearHistory. Without one both are refused with ErrCancelled.
func WithConfirmer(c Confirmer) Option {
	return func(svc *Service) { svc.confirmer = c }
}

// WithRefresher sets the channel refreshed after SendTest.
func WithRefresher(r Refresher) Option {
	return func(svc *Service) { svc.refresher = r }
}

// WithTestRefreshDelay overrides DefaultTestRefreshDelay.
func WithTestRefreshDelay(d time.Duration) Option {
	return func(svc *Service) { svc.testRefreshDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// NewService creates a Service.
func NewService(b Backend, id IdentitySource, s *store.Store, opts ...Option) *Service {
	svc := &Service{
		backend:          b,
		identity:         id,
		store:            s,
		logger:           zap.NewNop(),
		testRefreshDelay: DefaultTestRefreshDelay,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = svc.logger.Named("notifications")
	return svc
}

// SetRefresher replaces the refresher. The UI wires its foreground
// channel after constructing the service.
func (s *Service) SetRefresher(r Refresher) {
	s.refresher = r
}

// MarkRead marks one notification read. Unknown and already-read ids are
// a no-op and do not reach the backend.
func (s *Service) MarkRead(ctx context.Context, notificationID string) error {
	n, ok := s.store.Get(notificationID)
	if !ok || n.Read {
		return nil
	}

	id, err := s.identity.RequireIdentity()
	if err != nil {
		return err
	}

	if err := s.backend.MarkRead(ctx, id, notificationID); err != nil {
		return fmt.Errorf("marking %s read: %w", notificationID, err)
	}

	s.store.MarkRead(notificationID)
	s.persist(ctx)
	return nil
}

// MarkAllRead marks every notification read after confirmation.
func (s *Service) MarkAllRead(ctx context.Context) error {
	id, err := s.identity.RequireIdentity()
	if err != nil {
		return err
	}
	if err := s.confirm(ctx, ConfirmMarkAll); err != nil {
		return err
	}

	if err := s.backend.MarkAllRead(ctx, id); err != nil {
		return fmt.Errorf("marking all read: %w", err)
	}

	s.store.MarkAllRead()
	s.persist(ctx)
	return nil
}

// ClearHistory deletes the whole history after confirmation.
func (s *Service) ClearHistory(ctx context.Context) error {
	id, err := s.identity.RequireIdentity()
	if err != nil {
		return err
	}
	if err := s.confirm(ctx, ConfirmClear); err != nil {
		return err
	}

	if err := s.backend.ClearHistory(ctx, id); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	s.store.Clear()
	s.persist(ctx)
	return nil
}

// LoadHistory replaces the store with the backend's history. Records a
// poll merged while the request was in flight survive the load.
func (s *Service) LoadHistory(ctx context.Context) error {
	id, err := s.identity.RequireIdentity()
	if err != nil {
		return err
	}

	since := s.store.Revision()
	resp, err := s.backend.History(ctx, id)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	s.store.Reload(resp.Notifications, resp.UnreadCount, since)
	s.persist(ctx)
	s.logger.Debug("history loaded",
		zap.Int("count", len(resp.Notifications)),
		zap.Int("unread", resp.UnreadCount),
	)
	return nil
}

// RestoreSnapshot fills the store from the persisted snapshot unless a
// history load or a poll got there first. It reports whether anything was
// restored.
func (s *Service) RestoreSnapshot(ctx context.Context) (bool, error) {
	if s.snapshot == nil {
		return false, nil
	}

	items, unread, err := s.snapshot.LoadSnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("loading snapshot: %w", err)
	}
	if len(items) == 0 {
		return false, nil
	}

	return s.store.Seed(items, unread), nil
}

// SendTest asks the backend to emit a test notification and refreshes
// shortly after so it shows up without waiting for the next tick.
func (s *Service) SendTest(ctx context.Context) error {
	id, err := s.identity.RequireIdentity()
	if err != nil {
		return err
	}

	if err := s.backend.SendTest(ctx, id); err != nil {
		return fmt.Errorf("sending test notification: %w", err)
	}

	if r := s.refresher; r != nil {
		time.AfterFunc(s.testRefreshDelay, r.Refresh)
	}
	return nil
}

func (s *Service) confirm(ctx context.Context, question string) error {
	if s.confirmer == nil {
		return ErrCancelled
	}
	ok, err := s.confirmer.Confirm(ctx, question)
	if err != nil {
		return fmt.Errorf("confirming: %w", err)
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}

func (s *Service) persist(ctx context.Context) {
	if s.snapshot == nil {
		return
	}
	if err := s.snapshot.SaveSnapshot(ctx, s.store.List(), s.store.UnreadCount()); err != nil {
		s.logger.Warn("saving snapshot", zap.Error(err))
	}
}
