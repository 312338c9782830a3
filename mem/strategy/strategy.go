package strategy

import "github.com/arenalab/memkit/mem/status"

// Strategy is one allocation domain. Implementations must be safe for
// concurrent use.
type Strategy interface {
	// Allocate returns a zeroed buffer of exactly size bytes.
	Allocate(size uint64) ([]byte, error)

	// Deallocate returns a buffer previously handed out by Allocate.
	// The buffer must not be used after it is deallocated.
	Deallocate(buf []byte) error

	// Status reports the strategy's lifecycle state.
	Status() status.State

	// Validate reports whether the strategy is internally consistent
	// and able to serve requests.
	Validate() bool
}
