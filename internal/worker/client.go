package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/model"
)

// DefaultRequestTimeout bounds a control request.
const DefaultRequestTimeout = 5 * time.Second

// Client sends control messages to the worker and receives its events.
type Client struct {
	nc      *nats.Conn
	owned   bool
	timeout time.Duration
	logger  *zap.Logger
}

// Dial connects to the worker's message bus at url.
func Dial(url string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("agentnotify-ui"),
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrNoWorker, url, err)
	}
	c := NewClient(nc, timeout, logger)
	c.owned = true
	return c, nil
}

// NewClient wraps an existing connection.
func NewClient(nc *nats.Conn, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{nc: nc, timeout: timeout, logger: logger.Named("worker-client")}
}

// Send delivers m and waits for its ack. Every request carries a fresh
// correlation id that the ack must echo.
func (c *Client) Send(ctx context.Context, m Message) error {
	m.CorrelationID = uuid.NewString()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.nc.RequestWithContext(ctx, ControlSubject, data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrNoResponders):
			return ErrNoWorker
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
			return fmt.Errorf("%w: %s after %s", ErrTimeout, m.Type, c.timeout)
		default:
			return fmt.Errorf("sending %s: %w", m.Type, err)
		}
	}

	var ack Ack
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		return fmt.Errorf("decoding ack for %s: %w", m.Type, err)
	}
	if ack.CorrelationID != m.CorrelationID {
		return fmt.Errorf("ack for %s carries correlation id %q, want %q", m.Type, ack.CorrelationID, m.CorrelationID)
	}
	if !ack.Success {
		return fmt.Errorf("%w: %s: %s", ErrRejected, m.Type, ack.Error)
	}
	return nil
}

// StartCheck starts background polling for id.
func (c *Client) StartCheck(ctx context.Context, id model.Identity) error {
	return c.Send(ctx, Message{Type: StartCheck, UserID: string(id)})
}

// StopCheck stops background polling.
func (c *Client) StopCheck(ctx context.Context) error {
	return c.Send(ctx, Message{Type: StopCheck})
}

// UpdateUserID changes the identity the worker polls for.
func (c *Client) UpdateUserID(ctx context.Context, id model.Identity) error {
	return c.Send(ctx, Message{Type: UpdateUserID, UserID: string(id)})
}

// Subscribe calls fn for every worker event until the subscription is
// drained or the connection closes.
func (c *Client) Subscribe(fn func(Event)) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(EventsSubject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Warn("decoding worker event", zap.Error(err))
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", EventsSubject, err)
	}
	if err := c.nc.Flush(); err != nil {
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return sub, nil
}

// Close closes a connection opened by Dial.
func (c *Client) Close() {
	if c.owned {
		c.nc.Close()
	}
}
