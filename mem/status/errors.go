package status

import (
	"errors"
	"fmt"
)

var (
	// ErrNilTracker is returned by mutating operations on a nil tracker.
	ErrNilTracker = errors.New("status: nil tracker")

	// ErrInvalidTransition is returned when the transition matrix forbids
	// the requested state change.
	ErrInvalidTransition = errors.New("status: invalid transition")

	// ErrCounterOverflow is returned when a telemetry counter is already
	// at its maximum representable value.
	ErrCounterOverflow = errors.New("status: counter overflow")

	// ErrContention is returned when every bounded CAS attempt of a
	// transition lost its race. The state is unchanged and the caller may
	// retry.
	ErrContention = errors.New("status: transition contention")

	// ErrBadRules is returned by NewTracker for malformed rule sets.
	ErrBadRules = errors.New("status: malformed rules")
)

// TransitionError carries the endpoints of a rejected transition. It
// matches ErrInvalidTransition under errors.Is.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("status: invalid transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
