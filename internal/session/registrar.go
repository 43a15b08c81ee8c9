package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/model"
)

// DefaultRetryDelay is the fixed pause between registration attempts.
const DefaultRetryDelay = 5 * time.Second

// Backend is the registration call of the transport.
type Backend interface {
	Register(ctx context.Context, deviceName, deviceID string) (model.Identity, error)
}

// Registrar obtains the session identity from the backend.
type Registrar struct {
	backend    Backend
	session    *Session
	logger     *zap.Logger
	retryDelay time.Duration

	// after is time.After, replaceable in tests.
	after func(time.Duration) <-chan time.Time

	// OnAttempt, when set, is called after every attempt with its number
	// and error (nil on success).
	OnAttempt func(attempt int, err error)
}

// NewRegistrar creates a registrar. A non-positive retryDelay selects
// DefaultRetryDelay.
func NewRegistrar(b Backend, s *Session, logger *zap.Logger, retryDelay time.Duration) *Registrar {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{
		backend:    b,
		session:    s,
		logger:     logger.Named("registrar"),
		retryDelay: retryDelay,
		after:      time.After,
	}
}

// RetryDelay returns the fixed delay between attempts.
func (r *Registrar) RetryDelay() time.Duration {
	return r.retryDelay
}

// Register performs a single registration attempt and, on success, stores
// the identity in the session.
func (r *Registrar) Register(ctx context.Context, deviceName, deviceID string) (model.Identity, error) {
	id, err := r.backend.Register(ctx, deviceName, deviceID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("registration returned an empty identity")
	}
	r.session.SetIdentity(id)
	return id, nil
}

// RegisterUntilSuccess retries Register with a fixed delay, without
// backoff growth or an attempt cap, until it succeeds or ctx is done.
func (r *Registrar) RegisterUntilSuccess(ctx context.Context, deviceName, deviceID string) (model.Identity, error) {
	for attempt := 1; ; attempt++ {
		r.session.setConnection(ConnConnecting, attempt, nil)

		id, err := r.Register(ctx, deviceName, deviceID)
		if r.OnAttempt != nil {
			r.OnAttempt(attempt, err)
		}
		if err == nil {
			r.logger.Info("registered",
				zap.String("user_id", id.Short()),
				zap.Int("attempt", attempt),
			)
			return id, nil
		}
		r.session.setConnection(ConnRetrying, attempt, err)
		r.logger.Warn("registration failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", r.retryDelay),
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.after(r.retryDelay):
		}
	}
}
