package strategy

import (
	"math"

	"github.com/arenalab/memkit/mem/status"
)

// maxRequest is the largest single request any strategy will entertain.
// Anything bigger risks overflow in downstream block and byte arithmetic.
const maxRequest = math.MaxUint64 / 2

// ValidStrategy reports whether s is non-nil, ACTIVE, and passes its own
// consistency check.
func ValidStrategy(s Strategy) bool {
	return s != nil && s.Status() == status.StateActive && s.Validate()
}

// ValidAllocationSize rejects empty requests and sizes past maxRequest.
func ValidAllocationSize(size uint64) bool {
	return size > 0 && size <= maxRequest
}

// ValidDeallocation reports whether s is in a state to take back buf.
func ValidDeallocation(s Strategy, buf []byte) bool {
	return ValidStrategy(s) && len(buf) > 0
}
