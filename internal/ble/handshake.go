package ble

import (
	"fmt"
	"time"

	"z407ctl/internal/ble/protocol"
)

// HandshakeState tracks progress through the puck's mandatory connect-time
// exchange. The puck ignores every command until INITIATE and ACKNOWLEDGE
// have each been answered and the CONNECTED frame has arrived.
type HandshakeState uint8

const (
	StateIdle HandshakeState = iota
	StateAwaitingInitiateAck
	StateAwaitingAcknowledgeAck
	StateAwaitingConnected
	StateReady
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                   "idle",
	StateAwaitingInitiateAck:    "awaiting-initiate-ack",
	StateAwaitingAcknowledgeAck: "awaiting-acknowledge-ack",
	StateAwaitingConnected:      "awaiting-connected",
	StateReady:                  "ready",
	StateFailed:                 "failed",
}

func (s HandshakeState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

// handshake drives the three-step exchange. It is not safe for concurrent
// use on its own: the owning Session serializes start, handle, and expire
// under its lock. Timer callbacks re-enter through the session for the same
// reason.
type handshake struct {
	write   func(protocol.Command) error
	timeout time.Duration
	expired func(gen uint64) // timer callback, runs on the timer goroutine

	state    HandshakeState
	reason   error
	resolved bool
	done     chan struct{} // closed once state is Ready or Failed

	timer *time.Timer
	gen   uint64 // increments on every re-arm; stale timer fires are ignored
}

func newHandshake(write func(protocol.Command) error, timeout time.Duration, expired func(uint64)) *handshake {
	return &handshake{
		write:   write,
		timeout: timeout,
		expired: expired,
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// start sends INITIATE and arms the first step timer.
func (h *handshake) start() error {
	if h.state != StateIdle {
		return fmt.Errorf("ble: handshake already started (state %s)", h.state)
	}
	if err := h.write(protocol.CmdInitiate); err != nil {
		h.fail(fmt.Errorf("ble: write INITIATE: %w", err))
		return err
	}
	h.state = StateAwaitingInitiateAck
	h.arm()
	return nil
}

// handle advances the state machine on a decoded event. Events other than
// the one the current step expects are ignored: the puck may replay stale
// confirmations from a previous session's tail, and those must not derail
// the exchange.
func (h *handshake) handle(ev protocol.Event) {
	switch h.state {
	case StateAwaitingInitiateAck:
		if ev.Type != protocol.EventInitiateResponse {
			return
		}
		if err := h.write(protocol.CmdAcknowledge); err != nil {
			h.fail(fmt.Errorf("ble: write ACKNOWLEDGE: %w", err))
			return
		}
		h.state = StateAwaitingAcknowledgeAck
		h.arm()
	case StateAwaitingAcknowledgeAck:
		if ev.Type != protocol.EventAcknowledgeResponse {
			return
		}
		h.state = StateAwaitingConnected
		h.arm()
	case StateAwaitingConnected:
		if ev.Type != protocol.EventConnected {
			return
		}
		h.disarm()
		h.state = StateReady
		h.resolve()
	}
}

// expire handles a step timer firing. A fire whose generation does not match
// the current one was superseded by the expected event arriving first and is
// dropped, so the timer can never fail a handshake that already advanced.
func (h *handshake) expire(gen uint64) {
	if gen != h.gen || h.resolved {
		return
	}
	h.fail(fmt.Errorf("%w: no response within %s while %s", ErrHandshakeTimeout, h.timeout, h.state))
}

// fail moves to the terminal Failed state and records the reason.
func (h *handshake) fail(reason error) {
	if h.resolved {
		return
	}
	h.disarm()
	h.state = StateFailed
	h.reason = reason
	h.resolve()
}

func (h *handshake) resolve() {
	h.resolved = true
	close(h.done)
}

func (h *handshake) arm() {
	h.disarm()
	h.gen++
	gen := h.gen
	h.timer = time.AfterFunc(h.timeout, func() { h.expired(gen) })
}

func (h *handshake) disarm() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.gen++
}
