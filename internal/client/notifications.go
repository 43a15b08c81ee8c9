package client

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/model"
)

// Register obtains an identity for this device.
func (c *Client) Register(ctx context.Context, deviceName, deviceID string) (model.Identity, error) {
	var resp RegisterResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   c.paths.Register,
		body:   RegisterRequest{DeviceName: deviceName, DeviceID: deviceID},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("registering device: %w", err)
	}

	if resp.Success == nil {
		return "", fmt.Errorf("%w: registration response missing success", ErrMalformedPayload)
	}
	if !*resp.Success {
		return "", fmt.Errorf("%w: registration: %s", ErrRejected, resp.Error)
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("%w: registration response missing user_id", ErrMalformedPayload)
	}

	return model.Identity(resp.UserID), nil
}

// Poll fetches the notifications not yet delivered to id.
func (c *Client) Poll(ctx context.Context, id model.Identity) ([]model.Notification, error) {
	var resp PollResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   pathf(c.paths.Poll, string(id)),
		userID: string(id),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("polling notifications: %w", err)
	}
	if resp.Success != nil && !*resp.Success {
		return nil, fmt.Errorf("%w: poll: %s", ErrRejected, resp.Error)
	}
	c.logSkipped("poll", resp.Skipped)
	return resp.Notifications, nil
}

// History loads the full notification history of id.
func (c *Client) History(ctx context.Context, id model.Identity) (*HistoryResponse, error) {
	var resp HistoryResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   pathf(c.paths.History, string(id)),
		userID: string(id),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	c.logSkipped("history", resp.Skipped)
	return &resp, nil
}

func (c *Client) logSkipped(op string, skipped []error) {
	for _, err := range skipped {
		c.logger.Warn("skipping undecodable notification", zap.String("op", op), zap.Error(err))
	}
}

// MarkRead marks one notification read on the backend.
func (c *Client) MarkRead(ctx context.Context, id model.Identity, notificationID string) error {
	return c.ack(ctx, "mark read", request{
		method: http.MethodPost,
		path:   pathf(c.paths.MarkRead, notificationID),
		userID: string(id),
		body:   UserRequest{UserID: string(id)},
	})
}

// MarkAllRead marks every notification of id read on the backend.
func (c *Client) MarkAllRead(ctx context.Context, id model.Identity) error {
	return c.ack(ctx, "mark all read", request{
		method: http.MethodPost,
		path:   c.paths.MarkAllRead,
		userID: string(id),
		body:   UserRequest{UserID: string(id)},
	})
}

// ClearHistory deletes the notification history of id on the backend.
func (c *Client) ClearHistory(ctx context.Context, id model.Identity) error {
	return c.ack(ctx, "clear history", request{
		method: http.MethodPost,
		path:   c.paths.Clear,
		userID: string(id),
		body:   UserRequest{UserID: string(id)},
	})
}

// SendTest asks the backend to queue a test notification for id.
func (c *Client) SendTest(ctx context.Context, id model.Identity) error {
	return c.ack(ctx, "send test", request{
		method: http.MethodPost,
		path:   pathf(c.paths.Test, string(id)),
		userID: string(id),
	})
}

func (c *Client) ack(ctx context.Context, op string, r request) error {
	var resp AckResponse
	if err := c.do(ctx, r, &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return resp.check(op)
}
