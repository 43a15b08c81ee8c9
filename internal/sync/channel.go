// Package sync runs the polling channels that pull new notifications from
// the backend into the local store.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/store"
)

// SyncState represents the current state of a polling channel.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// String returns the display name of the state.
func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// Channel names.
const (
	Foreground = "foreground"
	Background = "background"
)

// SyncStatus holds the state of a single channel.
type SyncStatus struct {
	Channel  string
	State    SyncState
	Active   bool
	LastSync time.Time
	Error    error
}

// CycleResult describes one poll cycle.
type CycleResult struct {
	Channel  string
	Fetched  int
	Inserted []model.Notification
	Skipped  bool
	Err      error
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// Fetcher retrieves the notifications pending for an identity.
type Fetcher interface {
	Poll(ctx context.Context, id model.Identity) ([]model.Notification, error)
}

// IdentitySource yields the current identity, empty before registration.
type IdentitySource interface {
	Identity() model.Identity
}

// Presenter renders newly merged notifications.
type Presenter interface {
	Present(ctx context.Context, n model.Notification)
}

// Config wires a Channel.
type Config struct {
	Name      string
	Interval  time.Duration
	Fetcher   Fetcher
	Identity  IdentitySource
	Store     *store.Store
	Presenter Presenter
	Logger    *zap.Logger
}

// Channel polls the backend on a fixed interval and merges the results
// into a Store. Several channels may share one Store; a notification
// fetched by more than one of them is presented once.
type Channel struct {
	name      string
	interval  time.Duration
	fetcher   Fetcher
	identity  IdentitySource
	store     *store.Store
	presenter Presenter
	logger    *zap.Logger

	mu        gosync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	triggerCh chan struct{}
	status    SyncStatus

	// OnCycle, if set, is called after every cycle that reached the backend.
	OnCycle func(CycleResult)
}

// New creates a stopped Channel.
func New(cfg Config) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		name:      cfg.Name,
		interval:  cfg.Interval,
		fetcher:   cfg.Fetcher,
		identity:  cfg.Identity,
		store:     cfg.Store,
		presenter: cfg.Presenter,
		logger:    logger.Named("poller").With(zap.String("channel", cfg.Name)),
		triggerCh: make(chan struct{}, 1),
		status:    SyncStatus{Channel: cfg.Name},
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Interval returns the polling interval.
func (c *Channel) Interval() time.Duration {
	return c.interval
}

// Start runs one cycle immediately and then one per interval until Stop or
// until ctx is done. Starting a running channel restarts it, so at most one
// timer is ever active.
func (c *Channel) Start(ctx context.Context) {
	c.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.status.Active = true
	c.mu.Unlock()

	c.logger.Info("polling started", zap.Duration("interval", c.interval))
	go c.loop(loopCtx, done)
}

// Stop halts the channel and waits for its loop to exit. It is safe to
// call on a stopped channel.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.status.Active = false
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("polling stopped")
}

// Running reports whether the loop is active.
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Refresh triggers an immediate cycle on a running channel without
// resetting its timer.
func (c *Channel) Refresh() {
	select {
	case c.triggerCh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
}

// Status returns the current status.
func (c *Channel) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Channel) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := c.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		case <-c.triggerCh:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single poll cycle. Without an identity it does
// nothing. Fetch failures are logged and recorded in the status; they do
// not stop the channel.
func (c *Channel) RunOnce(ctx context.Context) CycleResult {
	res := CycleResult{Channel: c.name}

	id := c.identity.Identity()
	if id == "" {
		res.Skipped = true
		return res
	}

	c.setStatus(SyncRunning, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	items, err := c.fetcher.Poll(fetchCtx, id)
	cancel()

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			c.setStatus(SyncIdle, nil)
			res.Skipped = true
			return res
		}
		c.logger.Warn("poll failed", zap.Error(err))
		c.setStatus(SyncError, err)
		res.Err = err
		c.report(res)
		return res
	}

	res.Fetched = len(items)
	res.Inserted = c.merge(ctx, items)

	c.setStatus(SyncIdle, nil)
	if len(res.Inserted) > 0 {
		c.logger.Info("new notifications", zap.Int("count", len(res.Inserted)))
	}
	c.report(res)
	return res
}

// Merge applies items that reached this process by other means, such as a
// push from the background worker, with the same dedup-then-present rule
// as a poll cycle. It returns the items that were new.
func (c *Channel) Merge(ctx context.Context, items []model.Notification) []model.Notification {
	return c.merge(ctx, items)
}

func (c *Channel) merge(ctx context.Context, items []model.Notification) []model.Notification {
	if len(items) == 0 {
		return nil
	}

	var added []model.Notification
	for _, n := range items {
		if !c.store.Insert(n) {
			continue
		}
		added = append(added, n)
		if c.presenter != nil {
			c.presenter.Present(ctx, n)
		}
	}
	return added
}

func (c *Channel) report(res CycleResult) {
	if c.OnCycle != nil {
		c.OnCycle(res)
	}
}

func (c *Channel) setStatus(state SyncState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.State = state
	c.status.Error = err
	if state == SyncIdle && err == nil {
		c.status.LastSync = time.Now()
	}
}
