// Package comm tracks connection lifecycles with the same validated
// finite-state machine that governs allocation strategies, instanced
// with a seven-state matrix. It gates network operations — connect,
// disconnect, error handling — rather than allocations, and carries the
// last observed error code beside the shared transition telemetry.
package comm

import (
	"sync/atomic"

	"github.com/arenalab/memkit/mem/status"
)

// State is the connection lifecycle.
type State uint32

const (
	StateUninitialized State = iota
	StateInitialized
	StateConnecting
	StateConnected
	StateDisconnected
	StateError
	StateTransitioning
)

// connMatrix mirrors the strategy matrix's shape: no self-transitions,
// TRANSITIONING bridges everything. CONNECTED is only reachable through
// CONNECTING, and nothing returns to UNINITIALIZED except error recovery.
var connMatrix = [][]bool{
	//                    UNIN   INIT   CONN'G CONN   DISC   ERROR  TRANS
	/* UNINITIALIZED */ {false, true, false, false, false, true, false},
	/* INITIALIZED   */ {false, false, true, false, true, true, true},
	/* CONNECTING    */ {false, false, false, true, true, true, true},
	/* CONNECTED     */ {false, false, false, false, true, true, true},
	/* DISCONNECTED  */ {false, true, true, false, false, true, true},
	/* ERROR         */ {true, true, true, false, true, false, true},
	/* TRANSITIONING */ {true, true, true, true, true, true, false},
}

// Rules returns the connection lifecycle rule set.
func Rules() status.Rules[State] {
	return status.Rules[State]{
		Initial: StateUninitialized,
		Failure: StateError,
		Matrix:  connMatrix,
		Name:    func(s State) string { return s.String() },
	}
}

// ValidTransition reports whether the connection matrix allows from -> to.
func ValidTransition(from, to State) bool {
	if uint64(from) >= uint64(len(connMatrix)) || uint64(to) >= uint64(len(connMatrix)) {
		return false
	}
	return connMatrix[from][to]
}

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateError:
		return "Error"
	case StateTransitioning:
		return "Transitioning"
	default:
		return "Unknown"
	}
}

// Tracker is a connection lifecycle tracker. Beyond the shared FSM
// telemetry it remembers the most recent error code reported by the
// transport, because connection failures carry protocol-specific codes
// the state machine itself has no room for.
type Tracker struct {
	fsm     *status.Tracker[State]
	lastErr atomic.Int64
}

// NewTracker returns a tracker that has already completed its first
// transition into StateInitialized, so its transition count starts at 1.
func NewTracker() (*Tracker, error) {
	fsm, err := status.NewTracker(Rules())
	if err != nil {
		return nil, err
	}
	t := &Tracker{fsm: fsm}
	if err := t.fsm.Transition(StateInitialized); err != nil {
		return nil, err
	}
	return t, nil
}

// Transition moves the connection to the requested state under the
// connection matrix.
func (t *Tracker) Transition(to State) error {
	if t == nil {
		return status.ErrNilTracker
	}
	return t.fsm.Transition(to)
}

// Status returns the current connection state.
func (t *Tracker) Status() State {
	if t == nil {
		return StateUninitialized
	}
	return t.fsm.Status()
}

// Transitions returns the number of accepted transitions.
func (t *Tracker) Transitions() uint64 {
	if t == nil {
		return 0
	}
	return t.fsm.Transitions()
}

// Errors returns how many times the connection entered StateError.
func (t *Tracker) Errors() uint64 {
	if t == nil {
		return 0
	}
	return t.fsm.Errors()
}

// CanTransition reports whether the matrix allows moving to the given
// state from the current one.
func (t *Tracker) CanTransition(to State) bool {
	if t == nil {
		return false
	}
	return t.fsm.CanTransition(to)
}

// Connected reports whether the connection is established.
func (t *Tracker) Connected() bool {
	return t.Status() == StateConnected
}

// CanConnect reports whether starting a connection attempt is legal from
// the current state.
func (t *Tracker) CanConnect() bool {
	return t.CanTransition(StateConnecting)
}

// SetLastError records the most recent transport error code.
func (t *Tracker) SetLastError(code int64) {
	if t == nil {
		return
	}
	t.lastErr.Store(code)
}

// LastError returns the most recent transport error code, 0 if none.
func (t *Tracker) LastError() int64 {
	if t == nil {
		return 0
	}
	return t.lastErr.Load()
}

// Reset reinitializes the tracker: counters zeroed, error code cleared,
// and the first transition into StateInitialized already taken.
func (t *Tracker) Reset() error {
	if t == nil {
		return status.ErrNilTracker
	}
	t.fsm.Reset()
	t.lastErr.Store(0)
	return t.fsm.Transition(StateInitialized)
}
