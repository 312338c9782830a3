package pool

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/arenalab/memkit/internal/blockhdr"
	"github.com/arenalab/memkit/mem/status"
	"github.com/arenalab/memkit/mem/strategy"
)

func mustPool(t *testing.T, opts ...Option) *Strategy {
	t.Helper()
	p, err := New(opts...)
	require.NoError(t, err)
	return p
}

func payloadAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

func Test_New_DefaultGeometry(t *testing.T) {
	p := mustPool(t)

	require.Equal(t, status.StateActive, p.Status())
	require.True(t, p.Validate())
	require.NotEmpty(t, p.ID())
	require.NotNil(t, p.Tracker())

	m := p.Metrics()
	require.Equal(t, uint64(BlockCount), m.BlockCapacity)
	require.Equal(t, uint64(BlockSize), m.BlockSize)
	require.Equal(t, uint64(MaxAllocation), m.MaxAllocation)
	require.Zero(t, m.BlocksUsed)
	require.Zero(t, m.TotalAllocations)
	require.Zero(t, m.FailedAllocations)

	require.NoError(t, p.Close())
}

func Test_New_RejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"zero block size", []Option{WithBlockSize(0)}},
		{"block size not multiple of 8", []Option{WithBlockSize(100)}},
		{"block size smaller than header", []Option{WithBlockSize(8)}},
		{"zero block count", []Option{WithBlockCount(0)}},
		{"zero concurrency ceiling", []Option{WithMaxConcurrentOps(0)}},
		{"arena size overflows", []Option{WithBlockCount(math.MaxUint64 / 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.opts...)
			require.ErrorIs(t, err, ErrBadGeometry)
			require.Nil(t, p)
		})
	}
}

func Test_Allocate_WritesHeaderAndBitmap(t *testing.T) {
	p := mustPool(t)

	buf, err := p.Allocate(64)
	require.NoError(t, err)
	require.Len(t, buf, 64)

	require.Equal(t, uint64(1), blockhdr.Read(p.arena), "run length header at block 0")
	require.True(t, p.bits.isSet(0))
	require.False(t, p.bits.isSet(1))

	m := p.Metrics()
	require.Equal(t, uint64(1), m.BlocksUsed)
	require.Equal(t, uint64(1), m.TotalAllocations)

	require.NoError(t, p.Deallocate(buf))
	require.NoError(t, p.Close())
}

func Test_Allocate_ReturnsZeroedClampedBuffer(t *testing.T) {
	p := mustPool(t)

	buf, err := p.Allocate(300) // needs 2 blocks
	require.NoError(t, err)
	require.Len(t, buf, 300)
	require.Equal(t, 2*BlockSize-HeaderSize, cap(buf),
		"capacity stops at the end of the run")
	for i, b := range buf {
		require.Zero(t, b, "byte %d", i)
	}

	require.NoError(t, p.Deallocate(buf))
	require.NoError(t, p.Close())
}

func Test_Allocate_Boundaries(t *testing.T) {
	p := mustPool(t)

	_, err := p.Allocate(0)
	require.ErrorIs(t, err, strategy.ErrInvalidSize)

	_, err = p.Allocate(math.MaxUint64)
	require.ErrorIs(t, err, strategy.ErrInvalidSize)

	_, err = p.Allocate(math.MaxUint64 / 2)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = p.Allocate(MaxAllocation + 1)
	require.ErrorIs(t, err, ErrTooLarge)

	whole, err := p.Allocate(MaxAllocation)
	require.NoError(t, err, "the exact capacity must fit")
	require.Equal(t, uint64(BlockCount), p.Metrics().BlocksUsed)

	require.NoError(t, p.Deallocate(whole))
	require.Zero(t, p.Metrics().BlocksUsed)

	require.Equal(t, uint64(2), p.Metrics().FailedAllocations,
		"the two too-large rejections were counted; gate rejections were not")
	require.NoError(t, p.Close())
}

func Test_Allocate_ExhaustionAndReuse(t *testing.T) {
	p := mustPool(t)

	buffers := make([][]byte, 0, BlockCount)
	for i := 0; i < BlockCount; i++ {
		buf, err := p.Allocate(BlockSize - HeaderSize)
		require.NoError(t, err, "allocation %d", i)
		buffers = append(buffers, buf)
	}
	require.Equal(t, uint64(BlockCount), p.Metrics().BlocksUsed)

	_, err := p.Allocate(1)
	require.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, p.Deallocate(buffers[17]))
	reused, err := p.Allocate(1)
	require.NoError(t, err, "a freed block is immediately reusable")
	require.Equal(t, payloadAddr(buffers[17]), payloadAddr(reused),
		"first fit lands in the freed gap")

	require.NoError(t, p.Close())
}

func Test_Deallocate_ForeignBufferRejected(t *testing.T) {
	p := mustPool(t)

	require.ErrorIs(t, p.Deallocate(make([]byte, 32)), ErrForeignPointer)
	require.NoError(t, p.Close())
}

func Test_Deallocate_DoubleFreeIsNoOp(t *testing.T) {
	p := mustPool(t)

	buf, err := p.Allocate(64)
	require.NoError(t, err)
	require.NoError(t, p.Deallocate(buf))

	require.ErrorIs(t, p.Deallocate(buf), ErrDoubleFree)
	require.Zero(t, p.Metrics().BlocksUsed)
	require.NoError(t, p.Close())
}

func Test_Deallocate_MisalignedPointerRejected(t *testing.T) {
	p := mustPool(t)

	buf, err := p.Allocate(300)
	require.NoError(t, err)

	require.ErrorIs(t, p.Deallocate(buf[8:16]), strategy.ErrInvalidPointer)
	require.Equal(t, uint64(2), p.Metrics().BlocksUsed, "the run is untouched")

	require.NoError(t, p.Deallocate(buf))
	require.NoError(t, p.Close())
}

func Test_Deallocate_MidRunBlockRejected(t *testing.T) {
	p := mustPool(t)

	buf, err := p.Allocate(300) // blocks 0 and 1
	require.NoError(t, err)

	// buf[256:] starts exactly at block 1's payload boundary, but block
	// 1 is the middle of the run: its header bytes are scrubbed zeros.
	require.ErrorIs(t, p.Deallocate(buf[256:]), ErrCorruptHeader)
	require.Equal(t, uint64(2), p.Metrics().BlocksUsed)

	require.NoError(t, p.Deallocate(buf))
	require.NoError(t, p.Close())
}

func Test_Deallocate_ScrubsWholeRun(t *testing.T) {
	p := mustPool(t)

	buf, err := p.Allocate(64)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = 0xEE
	}

	require.NoError(t, p.Deallocate(buf))
	for i := 0; i < BlockSize; i++ {
		require.Zero(t, p.arena[i], "arena byte %d survives deallocation", i)
	}
	require.NoError(t, p.Close())
}

func Test_AdmissionValve_RejectsPastCeiling(t *testing.T) {
	p := mustPool(t)

	// Pretend the ceiling's worth of operations is already in flight.
	p.inFlight.Store(DefaultMaxConcurrentOps)

	_, err := p.Allocate(64)
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, uint64(1), p.Metrics().FailedAllocations)

	buf := []byte{1}
	require.ErrorIs(t, p.Deallocate(buf), ErrBusy)
	require.Equal(t, uint64(1), p.Metrics().FailedAllocations,
		"rejected deallocations are not failed allocations")

	p.inFlight.Store(0)
	require.NoError(t, p.Close())
}

func Test_Close_ScrubsAndRefusesNewWork(t *testing.T) {
	p := mustPool(t)

	buf, err := p.Allocate(128)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = 0xBB
	}

	require.NoError(t, p.Close())
	require.Equal(t, status.StateError, p.Status())
	require.False(t, p.Validate())
	require.Zero(t, p.Metrics().BlocksUsed)
	require.Zero(t, p.bits.used())

	for i := range p.arena {
		require.Zero(t, p.arena[i], "arena byte %d survives close", i)
	}

	_, err = p.Allocate(16)
	require.ErrorIs(t, err, strategy.ErrInactive)
	require.ErrorIs(t, p.Deallocate(buf), strategy.ErrInactive)

	require.NoError(t, p.Close(), "second close is safe")
}

func Test_Pool_NilReceiverIsSafe(t *testing.T) {
	var p *Strategy

	_, err := p.Allocate(16)
	require.ErrorIs(t, err, strategy.ErrInactive)
	require.ErrorIs(t, p.Deallocate(make([]byte, 1)), strategy.ErrInactive)
	require.NoError(t, p.Close())
	require.Equal(t, status.StateError, p.Status())
	require.False(t, p.Validate())
	require.Equal(t, Metrics{}, p.Metrics())
	require.Empty(t, p.ID())
	require.Nil(t, p.Tracker())
}

func Test_Pool_FragmentationReuse(t *testing.T) {
	p := mustPool(t)

	// Interleave one-block requests of both flavors, then punch holes.
	buffers := make([][]byte, 0, 100)
	for i := 0; i < 100; i++ {
		size := uint64(64)
		if i%2 == 1 {
			size = BlockSize - HeaderSize
		}
		buf, err := p.Allocate(size)
		require.NoError(t, err, "allocation %d", i)
		buffers = append(buffers, buf)
	}
	require.Equal(t, uint64(100), p.Metrics().BlocksUsed)

	freed := make(map[uintptr]bool)
	for i := 0; i < 100; i += 2 {
		freed[payloadAddr(buffers[i])] = true
		require.NoError(t, p.Deallocate(buffers[i]))
	}
	require.Equal(t, uint64(50), p.Metrics().BlocksUsed)

	reused := 0
	for i := 0; i < 50; i++ {
		buf, err := p.Allocate(64)
		require.NoError(t, err, "refill allocation %d", i)
		if freed[payloadAddr(buf)] {
			reused++
		}
	}
	require.Equal(t, 50, reused, "first fit reuses every punched gap")
	require.Equal(t, uint64(100), p.Metrics().BlocksUsed)

	require.NoError(t, p.Close())
}
