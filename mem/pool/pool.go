package pool

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"github.com/arenalab/memkit/internal/arith"
	"github.com/arenalab/memkit/internal/atomicx"
	"github.com/arenalab/memkit/internal/blockhdr"
	"github.com/arenalab/memkit/mem/status"
	"github.com/arenalab/memkit/mem/strategy"
)

const (
	// BlockSize is the default block size in bytes.
	BlockSize = 256

	// BlockCount is the default number of blocks in the arena.
	BlockCount = 1024

	// HeaderSize is the per-run bookkeeping overhead.
	HeaderSize = blockhdr.Size

	// MaxAllocation is the largest request the default geometry can
	// serve: every block in one run, minus the header.
	MaxAllocation = BlockSize*BlockCount - HeaderSize

	// DefaultMaxConcurrentOps is the admission ceiling: operations past
	// it fail fast instead of piling onto the bitmap scan.
	DefaultMaxConcurrentOps = 3
)

const drainPoll = time.Millisecond

// Strategy is the fixed-block arena allocator.
type Strategy struct {
	id      string
	log     *slog.Logger
	tracker *status.Tracker[status.State]

	blockSize  uint64
	blockCount uint64
	maxOps     uint64

	arena []byte
	bits  *bitmap

	blocksUsed  atomic.Uint64
	allocations atomic.Uint64
	failed      atomic.Uint64
	inFlight    atomic.Uint64
}

var _ strategy.Strategy = (*Strategy)(nil)

// Metrics is a point-in-time copy of the pool's counters.
type Metrics struct {
	BlocksUsed        uint64 `json:"blocks_used"`
	BlockCapacity     uint64 `json:"block_capacity"`
	BlockSize         uint64 `json:"block_size"`
	MaxAllocation     uint64 `json:"max_allocation"`
	TotalAllocations  uint64 `json:"total_allocations"`
	FailedAllocations uint64 `json:"failed_allocations"`
	ConcurrentOps     uint64 `json:"concurrent_ops"`
}

// Option configures a pool.
type Option func(*Strategy)

// WithLogger routes pool logging to log.
func WithLogger(log *slog.Logger) Option {
	return func(p *Strategy) {
		if log != nil {
			p.log = log
		}
	}
}

// WithBlockSize overrides the block size. The size must be a multiple
// of 8 larger than HeaderSize.
func WithBlockSize(size uint64) Option {
	return func(p *Strategy) { p.blockSize = size }
}

// WithBlockCount overrides the number of blocks in the arena.
func WithBlockCount(count uint64) Option {
	return func(p *Strategy) { p.blockCount = count }
}

// WithMaxConcurrentOps raises or lowers the admission ceiling.
func WithMaxConcurrentOps(n uint64) Option {
	return func(p *Strategy) { p.maxOps = n }
}

// New returns an ACTIVE pool. The whole arena is allocated and scrubbed
// up front; Allocate never grows it.
func New(opts ...Option) (*Strategy, error) {
	tracker, err := status.NewTracker(status.StrategyRules())
	if err != nil {
		return nil, err
	}

	p := &Strategy{
		id:         uuid.NewString(),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracker:    tracker,
		blockSize:  BlockSize,
		blockCount: BlockCount,
		maxOps:     DefaultMaxConcurrentOps,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.blockSize <= HeaderSize || p.blockSize%8 != 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrBadGeometry, p.blockSize)
	}
	if p.blockCount == 0 {
		return nil, fmt.Errorf("%w: block count 0", ErrBadGeometry)
	}
	if p.maxOps == 0 {
		return nil, fmt.Errorf("%w: concurrency ceiling 0", ErrBadGeometry)
	}
	arenaBytes, ok := arith.MulUint64(p.blockCount, p.blockSize)
	if !ok || arenaBytes > math.MaxInt {
		return nil, fmt.Errorf("%w: arena of %d x %d bytes", ErrBadGeometry, p.blockCount, p.blockSize)
	}

	p.arena = make([]byte, arenaBytes)
	p.bits = newBitmap(p.blockCount)

	if err := p.tracker.Transition(status.StateActive); err != nil {
		return nil, err
	}

	p.log.Debug("pool ready",
		"pool", p.id,
		"blocks", p.blockCount,
		"block_size", p.blockSize)
	return p, nil
}

// Allocate returns a zeroed buffer of exactly size bytes carved from a
// contiguous run of blocks. The buffer's capacity is clamped to its run,
// so appends can never bleed into a neighboring allocation.
func (p *Strategy) Allocate(size uint64) ([]byte, error) {
	if !strategy.ValidStrategy(p) {
		return nil, strategy.ErrInactive
	}
	if !strategy.ValidAllocationSize(size) {
		return nil, strategy.ErrInvalidSize
	}

	if p.inFlight.Add(1) > p.maxOps {
		p.inFlight.Add(^uint64(0))
		p.failed.Add(1)
		return nil, ErrBusy
	}
	defer p.inFlight.Add(^uint64(0))

	if p.tracker.Status() != status.StateActive {
		return nil, strategy.ErrInactive
	}

	needed := blockhdr.BlocksFor(size, p.blockSize)
	if needed == 0 || needed > p.blockCount {
		p.failed.Add(1)
		return nil, ErrTooLarge
	}

	start, ok := p.claimLowestRun(needed)
	if !ok {
		p.failed.Add(1)
		return nil, ErrExhausted
	}

	p.blocksUsed.Add(needed)
	p.allocations.Add(1)

	// Bits are already claimed, so this run is exclusively ours: write
	// the header, then scrub the payload before handing it out.
	run := p.runSlice(start, needed)
	blockhdr.Put(run, needed)
	payload := run[blockhdr.Size:]
	scrub(payload)

	return payload[:size], nil
}

// Deallocate returns buf's whole run to the pool: the run is scrubbed,
// header included, before its bits are released.
func (p *Strategy) Deallocate(buf []byte) error {
	if p == nil || p.tracker == nil {
		return strategy.ErrInactive
	}
	if len(buf) == 0 {
		return strategy.ErrInvalidPointer
	}
	if !strategy.ValidDeallocation(p, buf) {
		return strategy.ErrInactive
	}

	if p.inFlight.Add(1) > p.maxOps {
		p.inFlight.Add(^uint64(0))
		return ErrBusy
	}
	defer p.inFlight.Add(^uint64(0))

	if p.tracker.Status() != status.StateActive {
		return strategy.ErrInactive
	}

	idx, err := p.blockIndex(buf)
	if err != nil {
		return err
	}
	if !p.bits.isSet(idx) {
		return ErrDoubleFree
	}

	run := blockhdr.Read(p.arena[idx*p.blockSize:])
	if run == 0 || run > p.blockCount-idx {
		return fmt.Errorf("%w: run of %d blocks at block %d", ErrCorruptHeader, run, idx)
	}

	scrub(p.runSlice(idx, run))
	p.bits.releaseRun(idx, run)
	atomicx.SubWithFloor(&p.blocksUsed, run)
	return nil
}

// Metrics returns a snapshot of the pool's counters.
func (p *Strategy) Metrics() Metrics {
	if p == nil {
		return Metrics{}
	}
	return Metrics{
		BlocksUsed:        p.blocksUsed.Load(),
		BlockCapacity:     p.blockCount,
		BlockSize:         p.blockSize,
		MaxAllocation:     p.blockCount*p.blockSize - HeaderSize,
		TotalAllocations:  p.allocations.Load(),
		FailedAllocations: p.failed.Load(),
		ConcurrentOps:     p.inFlight.Load(),
	}
}

// Close refuses new operations, waits out in-flight ones, and scrubs
// the arena and bitmap. Safe to call more than once.
func (p *Strategy) Close() error {
	if p == nil || p.tracker == nil {
		return nil
	}

	if err := p.tracker.Transition(status.StateError); err != nil &&
		p.tracker.Status() != status.StateError {
		return err
	}

	for p.inFlight.Load() > 0 {
		time.Sleep(drainPoll)
	}

	scrub(p.arena)
	p.bits.reset()
	p.blocksUsed.Store(0)

	p.log.Debug("pool closed", "pool", p.id)
	return nil
}

// Status reports the pool's lifecycle state; a nil pool is ERROR.
func (p *Strategy) Status() status.State {
	if p == nil || p.tracker == nil {
		return status.StateError
	}
	return p.tracker.Status()
}

// Validate reports whether the pool is ACTIVE with its arena and bitmap
// intact.
func (p *Strategy) Validate() bool {
	return p != nil && p.tracker != nil && p.arena != nil && p.bits != nil &&
		p.tracker.Status() == status.StateActive
}

// Tracker exposes the lifecycle tracker, mainly for telemetry.
func (p *Strategy) Tracker() *status.Tracker[status.State] {
	if p == nil {
		return nil
	}
	return p.tracker
}

// ID returns the pool's unique instance tag.
func (p *Strategy) ID() string {
	if p == nil {
		return ""
	}
	return p.id
}

// claimLowestRun finds and claims the lowest-index contiguous run of n
// free blocks. A claim conflict resumes the scan just past the contested
// start, so the loop advances monotonically and terminates.
func (p *Strategy) claimLowestRun(n uint64) (uint64, bool) {
	for from := uint64(0); ; {
		start, ok := p.bits.findRun(from, n)
		if !ok {
			return 0, false
		}
		if p.bits.claimRun(start, n) {
			return start, true
		}
		from = start + 1
	}
}

// blockIndex maps a payload buffer back to its run's first block.
func (p *Strategy) blockIndex(buf []byte) (uint64, error) {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	base := uintptr(unsafe.Pointer(unsafe.SliceData(p.arena)))

	if addr < base+HeaderSize || addr >= base+uintptr(len(p.arena)) {
		return 0, ErrForeignPointer
	}

	offset := uint64(addr - base - HeaderSize)
	if offset%p.blockSize != 0 {
		// Inside the arena but not at a payload boundary; never a
		// pointer this pool handed out.
		return 0, strategy.ErrInvalidPointer
	}
	return offset / p.blockSize, nil
}

// runSlice returns the run's full byte range, capacity clamped so the
// slice can never reach past the run.
func (p *Strategy) runSlice(start, n uint64) []byte {
	lo := start * p.blockSize
	hi := lo + n*p.blockSize
	return p.arena[lo:hi:hi]
}

// scrub overwrites b with fixed patterns, ending on zero, so handed-out
// and returned memory never carries stale contents.
func scrub(b []byte) {
	for _, pattern := range [...]byte{0xFF, 0x00, 0xAA, 0x00} {
		for i := range b {
			b[i] = pattern
		}
	}
}
