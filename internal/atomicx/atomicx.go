// Package atomicx contains the shared lock-free counter idioms: bounded
// optimistic CAS phases with jittered backoff, followed by an operation
// that is guaranteed to apply. Updates may be delayed under contention
// but are never lost.
package atomicx

import (
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

const (
	// CounterRetries bounds the optimistic CAS phase of counter updates.
	CounterRetries = 5

	// TransitionRetries bounds state-transition CAS attempts.
	TransitionRetries = 3

	// ContentionRetries bounds backoff-assisted phases on hot paths
	// before they switch to tight retry loops.
	ContentionRetries = 10

	backoffBase   = 50 * time.Microsecond
	backoffMax    = 1000 * time.Microsecond
	jitterPercent = 20
)

// ErrCounterSaturated reports a counter already at its maximum value.
var ErrCounterSaturated = errors.New("atomicx: counter saturated")

// Backoff sleeps for an exponentially growing, jittered delay. Attempt 0
// returns immediately so first retries stay cheap.
func Backoff(attempt int) {
	if attempt <= 0 {
		return
	}
	shift := attempt - 1
	if shift > 6 {
		shift = 6 // already past the cap, avoid shifting into the sign bit
	}
	delay := backoffBase << shift
	if delay > backoffMax {
		delay = backoffMax
	}
	delay += delay * time.Duration(rand.Intn(jitterPercent)) / 100
	time.Sleep(delay)
}

// IncChecked increments c by one. The bounded CAS phase refuses to wrap,
// returning ErrCounterSaturated when c is at the maximum; once retries
// are exhausted the increment is applied unconditionally.
func IncChecked(c *atomic.Uint64) error {
	for attempt := 0; attempt < CounterRetries; attempt++ {
		cur := c.Load()
		if cur == math.MaxUint64 {
			return ErrCounterSaturated
		}
		if c.CompareAndSwap(cur, cur+1) {
			return nil
		}
		if attempt < CounterRetries-1 {
			Backoff(attempt)
		}
	}
	c.Add(1)
	return nil
}

// AddWithBackoff adds delta to c and returns the resulting value. After
// the bounded optimistic phase the add is applied unconditionally, so
// the update may be delayed but never lost.
func AddWithBackoff(c *atomic.Uint64, delta uint64) uint64 {
	for attempt := 0; attempt < CounterRetries; attempt++ {
		cur := c.Load()
		if c.CompareAndSwap(cur, cur+delta) {
			return cur + delta
		}
		if attempt < CounterRetries-1 {
			Backoff(attempt)
		}
	}
	return c.Add(delta)
}

// SubWithFloor subtracts delta from c without ever underflowing: when the
// current value is below delta the update becomes a no-op and SubWithFloor
// reports false. The loop backs off for the first ContentionRetries
// conflicts, then spins tight; some CAS in the system always succeeds, so
// the update is applied or floored eventually.
func SubWithFloor(c *atomic.Uint64, delta uint64) bool {
	for attempt := 0; ; attempt++ {
		cur := c.Load()
		if cur < delta {
			return false
		}
		if c.CompareAndSwap(cur, cur-delta) {
			return true
		}
		if attempt < ContentionRetries {
			Backoff(attempt)
		}
	}
}

// StoreMax advances c to v if v is larger. The loop only ever moves the
// value upward, so a lost race means another writer already stored
// something at least as large.
func StoreMax(c *atomic.Uint64, v uint64) {
	for {
		cur := c.Load()
		if v <= cur || c.CompareAndSwap(cur, v) {
			return
		}
	}
}
