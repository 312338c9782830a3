// Package status implements a thread-safe finite-state machine used to
// govern the lifecycle of stateful components such as allocation
// strategies and communication channels.
//
// # Model
//
// A Tracker holds one atomic state word plus transition and error
// counters. Every state change is validated against a static transition
// matrix supplied through Rules, so illegal lifecycle sequences are
// structurally unrepresentable: a transition either follows a matrix
// edge or fails with ErrInvalidTransition, leaving the state untouched.
//
// # Concurrency
//
// Transition performs a bounded compare-and-swap loop, re-validating the
// matrix against the freshly observed state on every retry, and reports
// ErrContention when all attempts lose their race. Counter updates use a
// bounded optimistic phase followed by an unconditional atomic add, so a
// contended update is delayed but never dropped. Counters saturate: once
// the transition counter reaches its maximum, further transitions are
// rejected with ErrCounterOverflow rather than wrapping.
//
// # Variants
//
// The generic four-state strategy lifecycle (INITIALIZED, ACTIVE, ERROR,
// TRANSITIONING) ships with this package via StrategyRules. The
// seven-state connection lifecycle lives in package comm and reuses the
// same engine with its own matrix.
package status
