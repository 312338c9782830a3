package strategy

import "errors"

var (
	// ErrInactive rejects operations on a strategy that is not in the
	// ACTIVE state (closed, failed, or still constructing).
	ErrInactive = errors.New("strategy: not active")

	// ErrInvalidSize rejects zero-byte and implausibly large requests.
	ErrInvalidSize = errors.New("strategy: invalid allocation size")

	// ErrSizeLimit rejects an allocation that would push the strategy's
	// outstanding bytes past its budget.
	ErrSizeLimit = errors.New("strategy: outstanding-bytes limit exceeded")

	// ErrInvalidPointer rejects nil or empty buffers on deallocation.
	ErrInvalidPointer = errors.New("strategy: invalid buffer")

	// ErrUntracked reports a deallocation of a buffer this strategy has
	// no record of — a double free or a foreign buffer.
	ErrUntracked = errors.New("strategy: buffer not tracked")

	// ErrLeaksDetected is returned by Close when allocations are still
	// outstanding after the drain.
	ErrLeaksDetected = errors.New("strategy: memory leaks detected")
)
