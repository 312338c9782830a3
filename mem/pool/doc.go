// Package pool implements the fixed-block arena strategy.
//
// # Layout
//
// One contiguous arena is sliced into fixed-size blocks (256 bytes by
// default, 1024 blocks). A request is served by a contiguous run of
// blocks: the run's first 8 bytes hold a little-endian run-length header
// and the rest is caller payload, so the largest single allocation is
// BlockSize·BlockCount − HeaderSize bytes. Deallocation walks the 8 bytes
// back from the payload to the header to learn the run length.
//
// # Bitmap
//
// Occupancy lives in an array of atomic words, one bit per block, 1 = in
// use, each word padded to its own cache line. A run is claimed word by
// word with compare-and-swap that only succeeds when every claimed bit
// was free; on conflict the partial claim is rolled back and the scan
// resumes past the contested block. Release is a single fetch-and per
// word. Bits are claimed before the header or payload is touched, and
// cleared only after the run is scrubbed.
//
// # Admission
//
// A small in-flight ceiling (3 operations by default) bounds contention
// on the bitmap scan. Operations past the ceiling fail fast with ErrBusy
// rather than queue.
//
// # Hygiene
//
// Payloads are overwritten with fixed patterns (0xFF, 0x00, 0xAA, 0x00)
// when a run is handed out and again — header included — when it is
// returned, so stale data never crosses allocations.
package pool
