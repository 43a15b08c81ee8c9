// Package session holds the per-process notification session: the
// backend-issued identity, the lifecycle state and the connection status
// shown by status displays.
package session

import (
	"errors"
	gosync "sync"
	"time"

	"github.com/nhle/agent-notify/internal/model"
)

// ErrUnregistered is returned by operations that need an identity when
// registration has not completed yet.
var ErrUnregistered = errors.New("not registered yet, please wait")

// State is the lifecycle stage of a Session.
type State int

const (
	StateCreated State = iota
	StateRegistered
	StatePolling
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRegistered:
		return "registered"
	case StatePolling:
		return "polling"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Connection describes the registration progress for status displays.
type Connection int

const (
	ConnIdle Connection = iota
	ConnConnecting
	ConnRetrying
	ConnConnected
)

func (c Connection) String() string {
	switch c {
	case ConnConnecting:
		return "connecting"
	case ConnRetrying:
		return "retrying"
	case ConnConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Status is a snapshot published to subscribers on every change.
type Status struct {
	State      State
	Connection Connection
	Identity   model.Identity
	Attempts   int
	LastError  error
	UpdatedAt  time.Time
}

// Session is the explicit replacement for process-wide globals: it owns
// the identity and is injected into the components that need it.
type Session struct {
	mu          gosync.RWMutex
	status      Status
	subscribers []chan Status
}

// New creates a session in the created state.
func New() *Session {
	return &Session{
		status: Status{State: StateCreated, UpdatedAt: time.Now()},
	}
}

// Identity returns the current identity, or "" before registration.
func (s *Session) Identity() model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Identity
}

// RequireIdentity returns the identity or ErrUnregistered.
func (s *Session) RequireIdentity() (model.Identity, error) {
	id := s.Identity()
	if id == "" {
		return "", ErrUnregistered
	}
	return id, nil
}

// Registered reports whether an identity is held.
func (s *Session) Registered() bool {
	return s.Identity() != ""
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.State
}

// Status returns the latest status snapshot.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetIdentity stores id and moves the session to registered. A disposed
// session ignores the call.
func (s *Session) SetIdentity(id model.Identity) {
	s.update(func(st *Status) bool {
		if st.State == StateDisposed {
			return false
		}
		st.Identity = id
		st.Connection = ConnConnected
		st.LastError = nil
		if st.State == StateCreated {
			st.State = StateRegistered
		}
		return true
	})
}

// MarkPolling records that polling has started.
func (s *Session) MarkPolling() {
	s.update(func(st *Status) bool {
		if st.State != StateRegistered {
			return false
		}
		st.State = StatePolling
		return true
	})
}

// Dispose ends the session and closes subscriber channels.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.status.State == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.status.State = StateDisposed
	s.status.UpdatedAt = time.Now()
	subs := s.subscribers
	s.subscribers = nil
	s.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// setConnection records a registration attempt outcome.
func (s *Session) setConnection(c Connection, attempts int, err error) {
	s.update(func(st *Status) bool {
		if st.State == StateDisposed {
			return false
		}
		st.Connection = c
		st.Attempts = attempts
		st.LastError = err
		return true
	})
}

// Subscribe returns a channel receiving every status change. Slow
// subscribers miss intermediate updates rather than blocking the session.
// The channel is closed on Dispose.
func (s *Session) Subscribe() <-chan Status {
	ch := make(chan Status, 8)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State == StateDisposed {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

func (s *Session) update(fn func(*Status) bool) {
	s.mu.Lock()
	if !fn(&s.status) {
		s.mu.Unlock()
		return
	}
	s.status.UpdatedAt = time.Now()
	snapshot := s.status
	subs := make([]chan Status, len(s.subscribers))
	copy(subs, s.subscribers)

	// Publish under the lock so Dispose cannot close a channel mid-send.
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	s.mu.Unlock()
}
