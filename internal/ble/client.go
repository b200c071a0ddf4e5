package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"z407ctl/internal/ble/protocol"
)

// ClientOptions configures the reconnecting client.
type ClientOptions struct {
	StepTimeout  time.Duration // per handshake step
	ReconnectMax int           // max reconnect backoff in seconds
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		StepTimeout:  2 * time.Second,
		ReconnectMax: 30,
	}
}

// Client keeps a control session to one puck alive: it dials, runs the
// handshake, and re-establishes everything with exponential backoff when
// the link drops. The protocol offers no way to correlate a command with a
// confirmation, so nothing is queued across a gap — Send fails with
// ErrDisconnected between sessions and the caller decides whether a stale
// volume step is still worth sending.
type Client struct {
	adapter Adapter
	address string
	opts    ClientOptions

	mu      sync.Mutex
	session *Session
	onEvent func(protocol.Event)

	closed       atomic.Bool
	reconnecting atomic.Bool
}

// NewClient creates a client for the puck at the given address.
func NewClient(adapter Adapter, address string, opts ClientOptions) (*Client, error) {
	if address == "" {
		return nil, errors.New("ble: device address is required")
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultClientOptions().StepTimeout
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = DefaultClientOptions().ReconnectMax
	}
	return &Client{
		adapter: adapter,
		address: address,
		opts:    opts,
	}, nil
}

// Connect enables the adapter and establishes the initial session, blocking
// through the handshake.
func (c *Client) Connect() error {
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	if err := c.establish(); err != nil {
		return err
	}
	slog.Info("[BLE] connected", "address", c.address)
	return nil
}

// Send forwards cmd to the current session.
func (c *Client) Send(cmd protocol.Command) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return ErrDisconnected
	}
	return session.Send(cmd)
}

// OnEvent registers the subscriber for decoded events. The registration
// survives reconnects.
func (c *Client) OnEvent(callback func(protocol.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = callback
}

// Close stops any reconnect loop and tears down the current session.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session != nil {
		return session.Close()
	}
	return nil
}

// establish dials the puck and runs a fresh handshake, then rebinds the
// disconnect handler so the client (not just the session) learns about the
// next link loss and can start reconnecting.
func (c *Client) establish() error {
	conn, err := c.adapter.Connect(context.Background(), c.address)
	if err != nil {
		return fmt.Errorf("ble: connect to %s: %w", c.address, err)
	}

	session, err := Establish(conn, SessionOptions{StepTimeout: c.opts.StepTimeout})
	if err != nil {
		conn.Disconnect()
		return err
	}
	session.OnEvent(c.dispatch)

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	conn.OnDisconnect(func() {
		session.onConnectionLost()
		c.clearSession(session)
		if c.closed.Load() {
			return
		}
		slog.Warn("[BLE] disconnected, reconnecting...")
		go c.reconnectLoop()
	})
	return nil
}

func (c *Client) dispatch(ev protocol.Event) {
	c.mu.Lock()
	cb := c.onEvent
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (c *Client) clearSession(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		c.session = nil
	}
}

// reconnectLoop re-establishes the session with exponential backoff. The
// atomic guard keeps concurrent disconnect signals from stacking loops.
func (c *Client) reconnectLoop() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnecting.Store(false)

	for attempt := 0; ; attempt++ {
		if c.closed.Load() {
			return
		}
		// First attempt is immediate; the rest back off.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, c.opts.ReconnectMax)
			slog.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			time.Sleep(delay)
			if c.closed.Load() {
				return
			}
		}

		if err := c.establish(); err != nil {
			slog.Warn("[BLE] reconnect failed", "error", err, "attempt", attempt+1)
			continue
		}
		slog.Info("[BLE] reconnected", "address", c.address)
		return
	}
}

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	if attempt > 30 {
		attempt = 30 // cap the shift, not just the result
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	max := time.Duration(maxSeconds) * time.Second
	if delay > max {
		return max
	}
	return delay
}
