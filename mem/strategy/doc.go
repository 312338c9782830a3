// Package strategy defines the pluggable allocation interface and ships
// the system-allocator implementation.
//
// # Strategies
//
// A Strategy owns one allocation domain: it hands out buffers, takes them
// back, and reports its lifecycle state. Callers program against the
// interface so a pool, an arena, or the system allocator can be swapped
// without touching call sites. Implementations in this module:
//
//   - Default (this package) — system allocator plus full ledger tracking.
//   - pool.Strategy — fixed-block arena with an atomic bitmap.
//
// # Lifecycle
//
// Strategies run the four-state machine from package status. Construction
// ends in StateActive; Close moves the strategy to StateError, waits for
// in-flight operations to drain, then reports anything still allocated.
// A strategy that detects leaks at Close returns ErrLeaksDetected — the
// bookkeeping survives long enough to name every outstanding buffer.
//
// # Concurrency
//
// All Strategy methods are safe for concurrent use. Default keeps an
// in-flight gauge so Close can wait for operations that raced past the
// state check; totals are plain atomics with bounded-retry updates.
package strategy
