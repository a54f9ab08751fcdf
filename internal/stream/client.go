package stream

import (
	"context"
	"io"
	"log/slog"
	stdsync "sync"
	"time"
)

// State is the push stream connection state.
type State int

// Connection states. failed is transient (observed between a broken read
// and the next backoff step); disconnected is the parked terminal state
// awaiting an external Reconnect.
const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateFailed
	StateReconnecting
)

// String returns the lowercase state name for logs and status output.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// DialFunc opens the push connection and returns its wire body. The
// transport below the event-parsing level (plain HTTP event stream or
// WebSocket) is the dialer's concern.
type DialFunc func(ctx context.Context) (io.ReadCloser, error)

// Client maintains one server-push connection. On failure it retries with
// linear backoff (attempt × backoff unit) up to maxAttempts; past the cap
// it parks disconnected until Reconnect is called (typically by the
// reachability monitor reporting online).
type Client struct {
	dial        DialFunc
	handler     func(Event)
	backoffUnit time.Duration
	maxAttempts int
	logger      *slog.Logger

	// sleepFunc is injectable for tests.
	sleepFunc func(ctx context.Context, d time.Duration) error

	kick chan struct{}

	mu       stdsync.Mutex
	state    State
	attempts int
}

// NewClient creates a push stream client. The handler receives every
// parsed event; it must not block for long since it runs on the read loop.
func NewClient(dial DialFunc, handler func(Event), backoffUnit time.Duration, maxAttempts int, logger *slog.Logger) *Client {
	return &Client{
		dial:        dial,
		handler:     handler,
		backoffUnit: backoffUnit,
		maxAttempts: maxAttempts,
		logger:      logger,
		sleepFunc:   timeSleep,
		kick:        make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Reconnect resets the attempt counter and wakes a parked client. Safe to
// call from any goroutine; a kick while connected is a no-op on the next
// park.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()

	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run drives the connect/read/backoff loop until the context is canceled.
// It always returns nil on cancellation so it composes with errgroup.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		c.setState(StateConnecting)

		body, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return nil
			}

			c.logger.Warn("push stream connect failed", slog.String("error", err.Error()))

			if done := c.backoffOrPark(ctx); done {
				return nil
			}

			continue
		}

		c.setState(StateOpen)
		c.resetAttempts()
		c.logger.Info("push stream connected")

		readErr := scanEvents(body, c.handler)
		body.Close()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		// A server-push stream is not supposed to end; EOF and read errors
		// both go through the failure path.
		c.setState(StateFailed)

		if readErr != nil {
			c.logger.Warn("push stream read failed", slog.String("error", readErr.Error()))
		} else {
			c.logger.Info("push stream closed by server")
		}

		if done := c.backoffOrPark(ctx); done {
			return nil
		}
	}
}

// backoffOrPark advances the attempt counter and either sleeps the linear
// backoff (attempt × unit) or, past the attempt ceiling, parks until an
// external Reconnect. Returns true when the context was canceled.
func (c *Client) backoffOrPark(ctx context.Context) bool {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if attempt > c.maxAttempts {
		c.setState(StateDisconnected)
		c.logger.Warn("push stream retry limit reached, awaiting reconnect",
			slog.Int("attempts", attempt-1),
		)

		select {
		case <-ctx.Done():
			return true
		case <-c.kick:
			return false
		}
	}

	c.setState(StateReconnecting)

	delay := time.Duration(attempt) * c.backoffUnit
	c.logger.Info("push stream reconnecting",
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", c.maxAttempts),
		slog.Duration("backoff", delay),
	)

	if err := c.sleepFunc(ctx, delay); err != nil {
		return true
	}

	return false
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) resetAttempts() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
