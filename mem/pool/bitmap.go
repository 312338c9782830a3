package pool

import (
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const bitsPerWord = 64

// word is one bitmap word padded onto its own cache line so concurrent
// claims against neighboring words do not false-share.
type word struct {
	bits atomic.Uint64
	_    cpu.CacheLinePad
}

// bitmap tracks block occupancy, one bit per block, 1 = in use.
//
// Claiming is the only guarded mutation: a run is taken word by word
// with a compare-and-swap that succeeds only while every targeted bit is
// still free, and a conflict rolls the partial claim back. Releasing a
// run the caller owns needs no guard — it is a fetch-and per word.
type bitmap struct {
	blocks uint64
	words  []word
}

func newBitmap(blocks uint64) *bitmap {
	return &bitmap{
		blocks: blocks,
		words:  make([]word, (blocks+bitsPerWord-1)/bitsPerWord),
	}
}

// isSet reports whether block is marked in use. Out-of-range blocks
// read as free.
func (b *bitmap) isSet(block uint64) bool {
	if block >= b.blocks {
		return false
	}
	return b.words[block/bitsPerWord].bits.Load()&(1<<(block%bitsPerWord)) != 0
}

// findRun scans from block `from` for the lowest-index run of n free
// blocks. The scan is advisory: bits may change before the caller
// claims, so a hit must still be confirmed by claimRun.
func (b *bitmap) findRun(from, n uint64) (uint64, bool) {
	if n == 0 || n > b.blocks {
		return 0, false
	}

	var consecutive uint64
	for i := from; i < b.blocks; i++ {
		if b.isSet(i) {
			consecutive = 0
			continue
		}
		consecutive++
		if consecutive == n {
			return i - (n - 1), true
		}
	}
	return 0, false
}

// claimRun atomically marks blocks [start, start+n) in use. Returns
// false — with any partial claim rolled back — if a concurrent claim
// holds any bit of the run.
func (b *bitmap) claimRun(start, n uint64) bool {
	if n == 0 || start >= b.blocks || n > b.blocks-start {
		return false
	}

	var claimed uint64
	for claimed < n {
		pos := start + claimed
		mask, count := runMask(pos, n-claimed)
		w := &b.words[pos/bitsPerWord]
		for {
			old := w.bits.Load()
			if old&mask != 0 {
				b.releaseRun(start, claimed)
				return false
			}
			if w.bits.CompareAndSwap(old, old|mask) {
				break
			}
			// The CAS lost to traffic on other bits of this word;
			// the run bits may still be free, so reload and retry.
		}
		claimed += count
	}
	return true
}

// releaseRun clears blocks [start, start+n). The caller must own the
// run; bits held by other runs are never touched because each word uses
// a fetch-and with only the run's own mask.
func (b *bitmap) releaseRun(start, n uint64) {
	if start >= b.blocks || n > b.blocks-start {
		return
	}

	var cleared uint64
	for cleared < n {
		pos := start + cleared
		mask, count := runMask(pos, n-cleared)
		w := &b.words[pos/bitsPerWord]
		for {
			old := w.bits.Load()
			if w.bits.CompareAndSwap(old, old&^mask) {
				break
			}
		}
		cleared += count
	}
}

// used returns the number of blocks currently marked in use.
func (b *bitmap) used() uint64 {
	var total uint64
	for i := range b.words {
		total += uint64(bits.OnesCount64(b.words[i].bits.Load()))
	}
	return total
}

// reset clears every bit.
func (b *bitmap) reset() {
	for i := range b.words {
		b.words[i].bits.Store(0)
	}
}

// runMask returns the bit mask covering the part of a run that falls in
// pos's word, and how many blocks that mask covers.
func runMask(pos, remaining uint64) (uint64, uint64) {
	offset := pos % bitsPerWord
	count := bitsPerWord - offset
	if count > remaining {
		count = remaining
	}
	if count == bitsPerWord {
		return ^uint64(0), count
	}
	return ((uint64(1) << count) - 1) << offset, count
}
