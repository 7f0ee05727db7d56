package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a streaming session.
type State int

const (
	// StateConnecting - Transport is open, identity not yet checked.
	StateConnecting State = iota
	// StateAuthenticated - Identity verified, no buffer yet.
	StateAuthenticated
	// StateStreaming - Buffer allocated, audio is being analyzed.
	StateStreaming
	// StateRejected - Identity check failed. Only Close is allowed.
	StateRejected
	// StateClosed - Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateStreaming:
		return "STREAMING"
	case StateRejected:
		return "REJECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is CLOSED.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// Errors for invalid state transitions.
var (
	ErrSessionClosed    = errors.New("session is closed")
	ErrNotConnecting    = errors.New("session is not connecting")
	ErrNotAuthenticated = errors.New("session is not authenticated")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	CONNECTING → AUTHENTICATED → STREAMING → CLOSED
//	     │
//	     └──→ REJECTED → CLOSED
//
// Close is allowed from any state and is idempotent.
type Lifecycle struct {
	mu        sync.RWMutex
	sessionID string
	state     State
}

// NewLifecycle creates a new session lifecycle in CONNECTING state.
func NewLifecycle(sessionID string) *Lifecycle {
	return &Lifecycle{
		sessionID: sessionID,
		state:     StateConnecting,
	}
}

// SessionID returns the session ID.
func (l *Lifecycle) SessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsStreaming returns true while audio may be accepted.
func (l *Lifecycle) IsStreaming() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStreaming
}

// Authenticate moves CONNECTING to AUTHENTICATED.
func (l *Lifecycle) Authenticate() error {
	return l.transition(StateConnecting, StateAuthenticated, ErrNotConnecting)
}

// Reject moves CONNECTING to REJECTED.
func (l *Lifecycle) Reject() error {
	return l.transition(StateConnecting, StateRejected, ErrNotConnecting)
}

// StartStreaming moves AUTHENTICATED to STREAMING.
func (l *Lifecycle) StartStreaming() error {
	return l.transition(StateAuthenticated, StateStreaming, ErrNotAuthenticated)
}

// Close transitions the session to CLOSED state.
// Returns true if the state changed, false if already closed.
func (l *Lifecycle) Close() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateClosed
	return true
}

func (l *Lifecycle) transition(from, to State, wrongState error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case from:
		l.state = to
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return fmt.Errorf("%w: state=%s", wrongState, l.state)
	}
}
