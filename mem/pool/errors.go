package pool

import "errors"

var (
	// ErrBusy rejects an operation that would exceed the pool's
	// in-flight ceiling.
	ErrBusy = errors.New("pool: too many concurrent operations")

	// ErrTooLarge rejects a request that cannot fit the pool even when
	// it is completely empty.
	ErrTooLarge = errors.New("pool: request exceeds pool capacity")

	// ErrExhausted reports that no contiguous run of free blocks is
	// large enough for the request right now.
	ErrExhausted = errors.New("pool: no contiguous run available")

	// ErrForeignPointer rejects a buffer that does not point into this
	// pool's arena.
	ErrForeignPointer = errors.New("pool: buffer not from this pool")

	// ErrDoubleFree reports a deallocation of a block that is not
	// marked in use — a repeated free or a stale buffer.
	ErrDoubleFree = errors.New("pool: block already free")

	// ErrCorruptHeader reports a run-length header that names an
	// impossible run. The arena is left untouched.
	ErrCorruptHeader = errors.New("pool: corrupt run header")

	// ErrBadGeometry rejects pool construction with an unusable block
	// size or count.
	ErrBadGeometry = errors.New("pool: invalid geometry")
)
