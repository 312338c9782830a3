// Package arith contains overflow-safe arithmetic for allocation sizing.
package arith

import "math"

// AddUint64 adds a and b, returning ok = false when the sum would wrap.
func AddUint64(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// MulUint64 multiplies a and b, returning ok = false when the product
// would wrap. This guards count * blockSize geometry calculations.
func MulUint64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

// CeilDiv returns ceil(n / d) without intermediate overflow. A zero
// divisor yields 0 so callers can treat the result as "no blocks"
// instead of panicking.
func CeilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}
