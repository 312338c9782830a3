// Package stats implements a lock-free allocation ledger: aggregate
// counters, a size-bucket histogram, a bounded table of outstanding
// allocations for leak detection, and a circular allocation history for
// frequency analysis.
//
// # Tracking model
//
// Every allocation is counted in the aggregate totals. Leak tracking is
// additionally attempted against a fixed table of MaxTrackedAllocations
// slots; when the table is full the allocation stays counted but
// untracked. Tracking capacity, not allocation capacity, is bounded —
// an accepted approximation, not a failure.
//
// # Concurrency
//
// No locks. Counters follow the bounded-CAS-then-unconditional idiom, so
// contended updates are delayed, never lost. Slots are claimed through a
// transient in-use marker: a claim is a single CAS, the claim is
// re-validated before any payload access, and the marker is always
// released. Report snapshots read slots under the same claims, so a
// snapshot never observes a half-written record, though totals and slot
// contents may skew slightly under concurrent load.
package stats
