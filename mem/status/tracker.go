package status

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/arenalab/memkit/internal/atomicx"
)

// Rules describes one finite-state machine: its initial state, the state
// whose entry counts as an error, and the square validity matrix.
type Rules[S ~uint32] struct {
	// Initial is the state a new tracker starts in and Reset returns to.
	Initial S

	// Failure is the state whose entry increments the error counter.
	Failure S

	// Matrix holds one row per state; Matrix[from][to] == true allows
	// the transition. All rows must have the same length as the matrix.
	Matrix [][]bool

	// Name renders states in errors and logs. Optional; numeric fallback.
	Name func(S) string
}

func (r Rules[S]) validate() error {
	n := len(r.Matrix)
	if n == 0 {
		return fmt.Errorf("%w: empty matrix", ErrBadRules)
	}
	for i, row := range r.Matrix {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d entries, want %d", ErrBadRules, i, len(row), n)
		}
	}
	if !r.inRange(r.Initial) {
		return fmt.Errorf("%w: initial state out of range", ErrBadRules)
	}
	if !r.inRange(r.Failure) {
		return fmt.Errorf("%w: failure state out of range", ErrBadRules)
	}
	return nil
}

func (r Rules[S]) inRange(s S) bool {
	return uint64(s) < uint64(len(r.Matrix))
}

func (r Rules[S]) allows(from, to S) bool {
	if !r.inRange(from) || !r.inRange(to) {
		return false
	}
	return r.Matrix[from][to]
}

func (r Rules[S]) name(s S) string {
	if r.Name != nil {
		return r.Name(s)
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// Tracker is an atomic finite-state machine with transition and error
// telemetry. Each stateful component owns exactly one tracker. The zero
// value is not usable; construct with NewTracker.
type Tracker[S ~uint32] struct {
	rules       Rules[S]
	current     atomic.Uint32
	transitions atomic.Uint64
	errorCount  atomic.Uint64
}

// NewTracker validates rules and returns a tracker resting in the
// initial state with zeroed counters.
func NewTracker[S ~uint32](rules Rules[S]) (*Tracker[S], error) {
	if err := rules.validate(); err != nil {
		return nil, err
	}
	t := &Tracker[S]{rules: rules}
	t.current.Store(uint32(rules.Initial))
	return t, nil
}

// Transition moves the tracker to the requested state if the matrix
// allows it from the state observed at CAS time. The matrix is
// re-validated on every retry because a concurrent transition may have
// moved the state in between. On success the transition counter — and,
// for the failure state, the error counter — is incremented through the
// bounded-retry-then-unconditional-add idiom, so contended counter
// updates are delayed, never lost.
func (t *Tracker[S]) Transition(to S) error {
	if t == nil {
		return ErrNilTracker
	}
	if !t.rules.inRange(to) {
		return &TransitionError{From: t.rules.name(t.Status()), To: t.rules.name(to)}
	}
	if t.transitions.Load() == math.MaxUint64 {
		return ErrCounterOverflow
	}
	if to == t.rules.Failure && t.errorCount.Load() == math.MaxUint64 {
		return ErrCounterOverflow
	}

	for attempt := 0; attempt < atomicx.TransitionRetries; attempt++ {
		cur := S(t.current.Load())
		if !t.rules.allows(cur, to) {
			return &TransitionError{From: t.rules.name(cur), To: t.rules.name(to)}
		}
		if !t.current.CompareAndSwap(uint32(cur), uint32(to)) {
			continue
		}
		if err := atomicx.IncChecked(&t.transitions); err != nil {
			return ErrCounterOverflow
		}
		if to == t.rules.Failure {
			if err := atomicx.IncChecked(&t.errorCount); err != nil {
				return ErrCounterOverflow
			}
		}
		return nil
	}
	return ErrContention
}

// Status returns the current state. Safe on a nil tracker, where it
// reports the zero state.
func (t *Tracker[S]) Status() S {
	if t == nil {
		var zero S
		return zero
	}
	return S(t.current.Load())
}

// Transitions returns how many transitions have been accepted.
func (t *Tracker[S]) Transitions() uint64 {
	if t == nil {
		return 0
	}
	return t.transitions.Load()
}

// Errors returns how many times the tracker entered its failure state.
func (t *Tracker[S]) Errors() uint64 {
	if t == nil {
		return 0
	}
	return t.errorCount.Load()
}

// Reset returns the tracker to its initial state and zeroes both
// counters. Not meant to race with in-flight transitions.
func (t *Tracker[S]) Reset() {
	if t == nil {
		return
	}
	t.current.Store(uint32(t.rules.Initial))
	t.transitions.Store(0)
	t.errorCount.Store(0)
}

// CanTransition reports whether the matrix allows moving from the
// tracker's current state to the given one, without attempting it.
func (t *Tracker[S]) CanTransition(to S) bool {
	if t == nil {
		return false
	}
	return t.rules.allows(t.Status(), to)
}
