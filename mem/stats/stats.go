package stats

import (
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arenalab/memkit/internal/atomicx"
)

const (
	// MaxTrackedAllocations bounds the leak-tracking table.
	MaxTrackedAllocations = 1000

	// PatternHistorySize bounds the circular allocation history.
	PatternHistorySize = 100

	// SizeBucketCount is the number of histogram buckets.
	SizeBucketCount = 8

	// MaxLeakReports caps the leak entries copied into one report.
	MaxLeakReports = 100
)

// sizeThresholds are the inclusive upper bounds of the histogram buckets.
var sizeThresholds = [SizeBucketCount]uint64{32, 64, 128, 256, 512, 1024, 4096, math.MaxUint64}

// Site identifies the code location that requested an allocation.
type Site struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// CallerSite captures the file and line of the caller, skip frames up
// the stack (0 names the caller of CallerSite itself).
func CallerSite(skip int) Site {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{File: "unknown"}
	}
	return Site{File: file, Line: line}
}

// slot is one entry of the leak-tracking table. addr, size and stamp are
// atomic so scans can inspect candidates without claiming them; site is
// plain and only touched while the in-use claim is held.
type slot struct {
	addr  atomic.Uintptr
	size  atomic.Uint64
	stamp atomic.Int64 // unix milliseconds
	valid atomic.Uint32
	inUse atomic.Uint32
	site  Site
}

type histEntry struct {
	size  atomic.Uint64
	stamp atomic.Int64
}

// Ledger tracks allocations for one strategy instance. All methods are
// safe for concurrent use and safe on a nil receiver.
type Ledger struct {
	id  string
	log *slog.Logger

	allocs       atomic.Uint64
	frees        atomic.Uint64
	currentBytes atomic.Uint64
	peakBytes    atomic.Uint64
	activeCount  atomic.Uint64
	leakedBytes  atomic.Uint64

	buckets [SizeBucketCount]atomic.Uint64
	histIdx atomic.Uint64
	history [PatternHistorySize]histEntry
	slots   [MaxTrackedAllocations]slot
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger routes the ledger's diagnostics to log. The default logger
// discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// New returns an empty ledger tagged with a fresh instance ID.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		id:  uuid.NewString(),
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ID returns the ledger's instance identifier.
func (l *Ledger) ID() string {
	if l == nil {
		return ""
	}
	return l.id
}

// RecordAllocation counts an allocation of size bytes at addr and tries
// to leak-track it. Aggregate counters are always updated; when no
// tracking slot can be claimed the allocation is counted but untracked.
func (l *Ledger) RecordAllocation(addr uintptr, size uint64, site Site) {
	if l == nil || addr == 0 {
		return
	}

	_ = atomicx.IncChecked(&l.allocs)
	newCurrent := atomicx.AddWithBackoff(&l.currentBytes, size)
	atomicx.StoreMax(&l.peakBytes, newCurrent)

	idx := -1
	for attempt := 0; attempt < atomicx.ContentionRetries && idx < 0; attempt++ {
		idx = l.claimFreeSlot()
		if idx < 0 && attempt < atomicx.ContentionRetries-1 {
			atomicx.Backoff(attempt)
		}
	}

	if idx >= 0 {
		s := &l.slots[idx]
		s.addr.Store(addr)
		s.size.Store(size)
		s.stamp.Store(time.Now().UnixMilli())
		s.site = site
		s.valid.Store(1)
		l.activeCount.Add(1)
		l.leakedBytes.Add(size)
		s.inUse.Store(0) // release last, after the record is published
	} else {
		l.log.Debug("tracking table full, allocation counted but untracked",
			"addr", addr, "size", size)
	}

	l.bucketFor(size).Add(1)
	l.recordHistory(size)
}

// RecordDeallocation removes the tracking record for addr and updates
// the aggregate counters. Returns the freed size, or 0 when addr is not
// tracked — a double free or a foreign pointer, signaled, not fatal.
func (l *Ledger) RecordDeallocation(addr uintptr) uint64 {
	if l == nil || addr == 0 {
		return 0
	}

	size := l.findAndRemove(addr)
	if size == 0 {
		return 0
	}

	_ = atomicx.IncChecked(&l.frees)
	atomicx.SubWithFloor(&l.currentBytes, size)
	return size
}

// AllocationSize returns the recorded size for addr, 0 when untracked.
func (l *Ledger) AllocationSize(addr uintptr) uint64 {
	if l == nil || addr == 0 {
		return 0
	}
	for i := range l.slots {
		s := &l.slots[i]
		if s.valid.Load() != 0 && s.addr.Load() == addr {
			return s.size.Load()
		}
	}
	return 0
}

// Allocations returns the total number of recorded allocations.
func (l *Ledger) Allocations() uint64 {
	if l == nil {
		return 0
	}
	return l.allocs.Load()
}

// Deallocations returns the total number of recorded deallocations.
func (l *Ledger) Deallocations() uint64 {
	if l == nil {
		return 0
	}
	return l.frees.Load()
}

// CurrentBytes returns the bytes currently recorded as outstanding.
func (l *Ledger) CurrentBytes() uint64 {
	if l == nil {
		return 0
	}
	return l.currentBytes.Load()
}

// PeakBytes returns the highest outstanding byte total observed.
func (l *Ledger) PeakBytes() uint64 {
	if l == nil {
		return 0
	}
	return l.peakBytes.Load()
}

// ActiveTracked returns the number of live leak-tracking records.
func (l *Ledger) ActiveTracked() uint64 {
	if l == nil {
		return 0
	}
	return l.activeCount.Load()
}

// LeakedBytes returns the byte total of live leak-tracking records.
func (l *Ledger) LeakedBytes() uint64 {
	if l == nil {
		return 0
	}
	return l.leakedBytes.Load()
}

// Reset clears every counter, bucket, slot and history entry. Not meant
// to race with in-flight recordings.
func (l *Ledger) Reset() {
	if l == nil {
		return
	}
	l.allocs.Store(0)
	l.frees.Store(0)
	l.currentBytes.Store(0)
	l.peakBytes.Store(0)
	l.activeCount.Store(0)
	l.leakedBytes.Store(0)
	l.histIdx.Store(0)
	for i := range l.buckets {
		l.buckets[i].Store(0)
	}
	for i := range l.history {
		l.history[i].size.Store(0)
		l.history[i].stamp.Store(0)
	}
	for i := range l.slots {
		s := &l.slots[i]
		s.valid.Store(0)
		s.addr.Store(0)
		s.size.Store(0)
		s.stamp.Store(0)
		s.site = Site{}
		s.inUse.Store(0)
	}
}

// claimFreeSlot scans for a slot with no live record and claims it.
// The claim is re-validated because a concurrent publisher may have
// filled the slot between the scan read and the CAS.
func (l *Ledger) claimFreeSlot() int {
	for i := range l.slots {
		s := &l.slots[i]
		if s.valid.Load() != 0 {
			continue
		}
		if !s.inUse.CompareAndSwap(0, 1) {
			continue
		}
		if s.valid.Load() != 0 {
			s.inUse.Store(0)
			continue
		}
		return i
	}
	return -1
}

// findAndRemove locates the live record for addr, claims it, clears it,
// and returns its size. The address is re-checked under the claim since
// the record may have been freed and reused between scan and CAS.
func (l *Ledger) findAndRemove(addr uintptr) uint64 {
	for i := range l.slots {
		s := &l.slots[i]
		if s.valid.Load() == 0 || s.addr.Load() != addr {
			continue
		}
		if !s.inUse.CompareAndSwap(0, 1) {
			continue
		}
		if s.valid.Load() == 0 || s.addr.Load() != addr {
			s.inUse.Store(0)
			continue
		}

		size := s.size.Load()
		s.valid.Store(0)
		s.addr.Store(0)
		s.size.Store(0)
		s.stamp.Store(0)
		s.site = Site{}

		l.activeCount.Add(^uint64(0))
		atomicx.SubWithFloor(&l.leakedBytes, size)

		s.inUse.Store(0)
		return size
	}
	return 0
}

func (l *Ledger) bucketFor(size uint64) *atomic.Uint64 {
	for i := range sizeThresholds {
		if size <= sizeThresholds[i] {
			return &l.buckets[i]
		}
	}
	return &l.buckets[SizeBucketCount-1]
}

func (l *Ledger) recordHistory(size uint64) {
	idx := l.histIdx.Add(1) - 1
	e := &l.history[idx%PatternHistorySize]
	e.size.Store(size)
	e.stamp.Store(time.Now().UnixMilli())
}
