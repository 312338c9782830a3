package strategy

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"github.com/arenalab/memkit/internal/atomicx"
	"github.com/arenalab/memkit/mem/stats"
	"github.com/arenalab/memkit/mem/status"
)

// outstandingLimit caps the bytes a Default strategy may have live at
// once. A quarter of the address space keeps every sum in later
// arithmetic far away from overflow.
const outstandingLimit = math.MaxUint64 / 4

// drainPoll is how often Close re-checks the in-flight gauge.
const drainPoll = time.Millisecond

// Default is the system-allocator strategy: buffers come from the Go
// runtime, and every operation is recorded in an allocation ledger so
// leaks can be named at shutdown.
//
// The ledger keys buffers by the address of their first byte. A buffer
// belongs to the caller from Allocate until the matching Deallocate;
// letting one go without deallocating shows up in the leak report.
type Default struct {
	id      string
	log     *slog.Logger
	tracker *status.Tracker[status.State]
	ledger  *stats.Ledger

	// usage gauges in-flight operations so Close can wait out calls
	// that passed the state check before the ERROR transition landed.
	usage     atomic.Uint64
	allocated atomic.Uint64
	freed     atomic.Uint64
	peak      atomic.Uint64
}

var _ Strategy = (*Default)(nil)

// Option configures a Default strategy.
type Option func(*Default)

// WithLogger routes strategy logging to log.
func WithLogger(log *slog.Logger) Option {
	return func(d *Default) {
		if log != nil {
			d.log = log
		}
	}
}

// WithLedger shares an externally owned ledger, for callers that
// aggregate several strategies into one leak report.
func WithLedger(l *stats.Ledger) Option {
	return func(d *Default) {
		if l != nil {
			d.ledger = l
		}
	}
}

// NewDefault returns an ACTIVE system-allocator strategy.
func NewDefault(opts ...Option) (*Default, error) {
	tracker, err := status.NewTracker(status.StrategyRules())
	if err != nil {
		return nil, err
	}

	d := &Default{
		id:      uuid.NewString(),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracker: tracker,
		ledger:  stats.New(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.tracker.Transition(status.StateActive); err != nil {
		return nil, err
	}
	return d, nil
}

// Allocate returns a zeroed buffer of exactly size bytes and records it
// in the ledger under the caller's file and line.
func (d *Default) Allocate(size uint64) ([]byte, error) {
	if !ValidStrategy(d) {
		return nil, ErrInactive
	}
	if !ValidAllocationSize(size) {
		return nil, ErrInvalidSize
	}

	d.usage.Add(1)
	defer d.usage.Add(^uint64(0))

	// Close may have moved the strategy to ERROR between the gate and
	// the gauge increment; re-check now that the drain loop sees us.
	if d.tracker.Status() != status.StateActive {
		return nil, ErrInactive
	}

	outstanding := d.CurrentUsage()
	if size > outstandingLimit || outstanding > outstandingLimit-size {
		return nil, ErrSizeLimit
	}

	buf := make([]byte, size)
	d.ledger.RecordAllocation(bufAddr(buf), size, stats.CallerSite(1))
	atomicx.AddWithBackoff(&d.allocated, size)
	atomicx.StoreMax(&d.peak, outstanding+size)
	return buf, nil
}

// Deallocate returns buf to the strategy. While the strategy is draining
// in ERROR state the call is accepted and ignored, so teardown paths can
// free unconditionally.
func (d *Default) Deallocate(buf []byte) error {
	if d == nil || d.tracker == nil {
		return ErrInactive
	}
	if len(buf) == 0 {
		return ErrInvalidPointer
	}

	d.usage.Add(1)
	defer d.usage.Add(^uint64(0))

	if d.tracker.Status() == status.StateError {
		return nil
	}

	size := d.ledger.RecordDeallocation(bufAddr(buf))
	if size == 0 {
		return ErrUntracked
	}
	atomicx.AddWithBackoff(&d.freed, size)
	return nil
}

// Close refuses new operations, waits for in-flight ones to finish, and
// reports whatever is still allocated. Safe to call more than once.
func (d *Default) Close() error {
	if d == nil || d.tracker == nil {
		return nil
	}

	if err := d.tracker.Transition(status.StateError); err != nil &&
		d.tracker.Status() != status.StateError {
		return err
	}

	for d.usage.Load() > 0 {
		time.Sleep(drainPoll)
	}

	allocated := d.allocated.Load()
	freed := d.freed.Load()
	if allocated > freed {
		d.log.Error("memory leaks detected during cleanup",
			"strategy", d.id,
			"outstanding_bytes", allocated-freed,
			"report", d.ledger.CheckLeaks())
		return fmt.Errorf("%w: %d bytes outstanding", ErrLeaksDetected, allocated-freed)
	}

	d.log.Debug("strategy closed cleanly", "strategy", d.id)
	return nil
}

// Status reports the strategy's lifecycle state; a nil strategy is ERROR.
func (d *Default) Status() status.State {
	if d == nil || d.tracker == nil {
		return status.StateError
	}
	return d.tracker.Status()
}

// Validate reports whether the strategy can serve requests.
func (d *Default) Validate() bool {
	if d == nil || d.tracker == nil || d.ledger == nil {
		return false
	}
	s := d.tracker.Status()
	return s == status.StateActive || s == status.StateInitialized
}

// CurrentUsage returns the bytes currently outstanding.
func (d *Default) CurrentUsage() uint64 {
	if d == nil {
		return 0
	}
	allocated := d.allocated.Load()
	freed := d.freed.Load()
	if allocated <= freed {
		return 0
	}
	return allocated - freed
}

// PeakUsage returns the high-water mark of outstanding bytes.
func (d *Default) PeakUsage() uint64 {
	if d == nil {
		return 0
	}
	return d.peak.Load()
}

// TotalAllocated returns the lifetime byte total handed out.
func (d *Default) TotalAllocated() uint64 {
	if d == nil {
		return 0
	}
	return d.allocated.Load()
}

// TotalFreed returns the lifetime byte total taken back.
func (d *Default) TotalFreed() uint64 {
	if d == nil {
		return 0
	}
	return d.freed.Load()
}

// Ledger exposes the strategy's allocation ledger for reports.
func (d *Default) Ledger() *stats.Ledger {
	if d == nil {
		return nil
	}
	return d.ledger
}

// Tracker exposes the lifecycle tracker, mainly for telemetry.
func (d *Default) Tracker() *status.Tracker[status.State] {
	if d == nil {
		return nil
	}
	return d.tracker
}

// ID returns the strategy's unique instance tag.
func (d *Default) ID() string {
	if d == nil {
		return ""
	}
	return d.id
}

// bufAddr is the ledger key for a buffer: the address of its first byte.
// The address is used as an identity only, never dereferenced.
func bufAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}
