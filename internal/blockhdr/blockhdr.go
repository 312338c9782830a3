// Package blockhdr encodes the run-length header stored at the front of
// every pool allocation. The header occupies the first Size bytes of a
// run's first block and records how many contiguous blocks the run spans.
package blockhdr

import (
	"encoding/binary"

	"github.com/arenalab/memkit/internal/arith"
)

// Size is the number of bytes the header occupies.
const Size = 8

// Put writes the run length into the first Size bytes of b. Reports
// false when b is too short to hold a header.
func Put(b []byte, blocks uint64) bool {
	if len(b) < Size {
		return false
	}
	binary.LittleEndian.PutUint64(b, blocks)
	return true
}

// Read returns the run length stored in b. Returns 0 when b is too short.
func Read(b []byte) uint64 {
	if len(b) < Size {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// BlocksFor returns how many blockSize-sized blocks a payload of size
// bytes needs once the header is accounted for. Returns 0 when size is 0,
// when blockSize is 0, or when the header-adjusted size would overflow.
//
// Example:
//
//	BlocksFor(1, 256)   == 1
//	BlocksFor(248, 256) == 1
//	BlocksFor(249, 256) == 2
func BlocksFor(size, blockSize uint64) uint64 {
	if size == 0 || blockSize == 0 {
		return 0
	}
	total, ok := arith.AddUint64(size, Size)
	if !ok {
		return 0
	}
	return arith.CeilDiv(total, blockSize)
}
