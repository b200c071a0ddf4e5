package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"z407ctl/internal/ble/protocol"
)

var (
	// ErrNotReady means a non-handshake command was sent before the
	// handshake completed. Recoverable: wait for the session to become
	// ready or establish a new one.
	ErrNotReady = errors.New("ble: handshake not complete")

	// ErrHandshakeTimeout means one of the three expected handshake
	// responses never arrived. Terminal for the session.
	ErrHandshakeTimeout = errors.New("ble: handshake timed out")

	// ErrDisconnected means the transport reported connection loss, or a
	// write failed (which is treated the same way). Terminal for the
	// session.
	ErrDisconnected = errors.New("ble: disconnected")
)

// SessionOptions configures session behavior.
type SessionOptions struct {
	StepTimeout time.Duration // window for each of the three handshake responses
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{StepTimeout: 2 * time.Second}
}

// Session binds one BLE connection to one handshake state machine and one
// event subscriber. It is the only writer of the handshake state; all
// notification handling is serialized under its lock, so no two frames race
// a state transition. A session that fails or loses its connection is dead
// for good; establish a new one.
type Session struct {
	mu      sync.Mutex
	conn    Connection
	cmdChar Characteristic
	hs      *handshake
	alive   bool
	onEvent func(protocol.Event)
}

// Establish discovers the puck's command and response characteristics on
// conn, subscribes, runs the mandatory handshake, and blocks until it
// resolves. The connection is borrowed, not owned: the caller dialed it and
// tears it down on error.
func Establish(conn Connection, opts SessionOptions) (*Session, error) {
	s, err := newSession(conn, opts)
	if err != nil {
		return nil, err
	}
	if err := s.startHandshake(); err != nil {
		return nil, err
	}
	if err := s.waitReady(); err != nil {
		return nil, err
	}
	return s, nil
}

// newSession wires a session to the connection without starting the
// handshake.
func newSession(conn Connection, opts SessionOptions) (*Session, error) {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultSessionOptions().StepTimeout
	}

	cmdChar, err := conn.DiscoverCharacteristic(ServiceUUID, CommandCharUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: discover command characteristic: %w", err)
	}
	respChar, err := conn.DiscoverCharacteristic(ServiceUUID, ResponseCharUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: discover response characteristic: %w", err)
	}

	s := &Session{conn: conn, cmdChar: cmdChar, alive: true}
	s.hs = newHandshake(s.writeOpcode, opts.StepTimeout, s.handshakeExpired)

	conn.OnDisconnect(s.onConnectionLost)
	if err := respChar.Subscribe(s.onNotification); err != nil {
		return nil, fmt.Errorf("ble: subscribe to responses: %w", err)
	}
	return s, nil
}

// startHandshake sends INITIATE and arms the first step timer.
func (s *Session) startHandshake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hs.start()
}

// waitReady blocks until the handshake resolves and reports how.
func (s *Session) waitReady() error {
	<-s.hs.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hs.state != StateReady {
		return s.hs.reason
	}
	slog.Info("[BLE] handshake complete, session ready")
	return nil
}

// Send encodes cmd and writes it to the command characteristic. Writes are
// fire-and-forget: the only acknowledgment the puck ever gives is the
// best-effort confirmation notification, which may arrive late or not at
// all. Safe for concurrent use.
func (s *Session) Send(cmd protocol.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return ErrDisconnected
	}
	if s.hs.state != StateReady && !cmd.IsHandshake() {
		return ErrNotReady
	}
	if err := s.writeOpcode(cmd); err != nil {
		// The puck never NACKs; a failed write means the link is gone.
		s.alive = false
		slog.Warn("[BLE] command write failed", "command", cmd.String(), "error", err)
		return fmt.Errorf("ble: write %s (%v): %w", cmd, err, ErrDisconnected)
	}
	slog.Debug("[BLE] command sent", "command", cmd.String())
	return nil
}

// OnEvent registers the subscriber invoked with every decoded event once
// the session is ready. Events during the handshake go to the state machine
// instead and are never surfaced.
func (s *Session) OnEvent(callback func(protocol.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = callback
}

// State returns the current handshake state.
func (s *Session) State() HandshakeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hs.state
}

// Close tears the session down and disconnects the underlying connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil
	}
	s.alive = false
	s.hs.disarm()
	conn := s.conn
	s.mu.Unlock()
	return conn.Disconnect()
}

// writeOpcode performs the raw characteristic write. Callers hold s.mu.
func (s *Session) writeOpcode(cmd protocol.Command) error {
	op := cmd.Opcode()
	return s.cmdChar.Write(op[:])
}

// onNotification decodes an incoming frame and routes it: to the handshake
// state machine until the session is ready, to the subscriber after.
func (s *Session) onNotification(data []byte) {
	ev := protocol.Decode(data)

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	if s.hs.state != StateReady {
		s.hs.handle(ev)
		s.mu.Unlock()
		return
	}
	cb := s.onEvent
	s.mu.Unlock()

	slog.Debug("[BLE] event", "event", ev.String())
	if cb != nil {
		cb(ev)
	}
}

// handshakeExpired runs on the step timer's goroutine and re-enters the
// state machine under the session lock.
func (s *Session) handshakeExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hs.expire(gen)
	if s.hs.state == StateFailed {
		slog.Warn("[BLE] handshake failed", "error", s.hs.reason)
	}
}

// onConnectionLost invalidates the session when the transport reports loss.
// If the handshake is still in flight its waiter is unblocked with
// ErrDisconnected; otherwise the state resets to idle and every subsequent
// Send fails with ErrDisconnected.
func (s *Session) onConnectionLost() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasAlive := s.alive
	s.alive = false
	if !s.hs.resolved {
		s.hs.fail(ErrDisconnected)
	} else {
		s.hs.disarm()
		s.hs.state = StateIdle
	}
	if wasAlive {
		slog.Warn("[BLE] connection lost")
	}
}
