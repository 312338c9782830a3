package pool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arenalab/memkit/internal/testutil"
	"github.com/arenalab/memkit/mem/strategy"
)

func Test_Pool_ConcurrentChurnNeverOverlapsRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("contention stress")
	}

	const (
		workers = 8
		ops     = 200
	)

	// Raise the admission ceiling so the workers hammer the bitmap scan
	// itself rather than bouncing off the valve.
	p := mustPool(t, WithMaxConcurrentOps(workers*2))

	var (
		successes  atomic.Uint64
		unexpected atomic.Uint64
	)

	testutil.RunWorkers(t, workers, func(worker int) {
		fill := byte(worker + 1)
		for i := 0; i < ops; i++ {
			size := uint64(32 + (worker*ops+i)%512)
			buf, err := p.Allocate(size)
			if err != nil {
				if !errors.Is(err, ErrExhausted) && !errors.Is(err, ErrBusy) {
					unexpected.Add(1)
				}
				continue
			}
			successes.Add(1)

			for j := range buf {
				buf[j] = fill
			}
			for j := range buf {
				if buf[j] != fill {
					unexpected.Add(1)
					break
				}
			}

			if err := p.Deallocate(buf); err != nil {
				unexpected.Add(1)
			}
		}
	})

	require.Zero(t, unexpected.Load(), "no overlapping runs, no failed frees")
	require.Positive(t, successes.Load())
	require.Equal(t, successes.Load(), p.Metrics().TotalAllocations)
	require.Zero(t, p.Metrics().BlocksUsed, "all runs returned")
	require.Zero(t, p.bits.used())
	require.NoError(t, p.Close())
}

func Test_Pool_ConcurrentClaimsStayDisjoint(t *testing.T) {
	if testing.Short() {
		t.Skip("contention stress")
	}

	const workers = 8
	b := newBitmap(BlockCount)

	// Every worker claims 3-block runs as fast as it can; the claims
	// must partition the bitmap with no double-granted block.
	starts := make([][]uint64, workers)
	testutil.RunWorkers(t, workers, func(worker int) {
		for {
			start, ok := b.findRun(0, 3)
			if !ok {
				return
			}
			if b.claimRun(start, 3) {
				starts[worker] = append(starts[worker], start)
			}
		}
	})

	granted := make(map[uint64]int)
	var total uint64
	for worker, runs := range starts {
		for _, start := range runs {
			for block := start; block < start+3; block++ {
				require.NotContains(t, granted, block,
					"block %d granted to workers %d and %d", block, granted[block], worker)
				granted[block] = worker
			}
			total += 3
		}
	}
	require.Equal(t, total, b.used())
	_, ok := b.findRun(0, 3)
	require.False(t, ok, "workers only stop once no 3-block run remains")
}

func Test_Pool_AdmissionValveUnderContention(t *testing.T) {
	if testing.Short() {
		t.Skip("contention stress")
	}

	// Default ceiling of 3 with many more workers: some operations must
	// bounce, none may corrupt the books.
	p := mustPool(t)

	const workers = 12
	var busy, served atomic.Uint64

	testutil.RunWorkers(t, workers, func(worker int) {
		for i := 0; i < 100; i++ {
			buf, err := p.Allocate(64)
			switch {
			case errors.Is(err, ErrBusy):
				busy.Add(1)
				continue
			case err != nil:
				t.Errorf("worker %d: %v", worker, err)
				return
			}
			served.Add(1)
			for {
				err := p.Deallocate(buf)
				if errors.Is(err, ErrBusy) {
					continue // valve pressure; the run is still ours
				}
				if err != nil {
					t.Errorf("worker %d free: %v", worker, err)
				}
				break
			}
		}
	})

	require.Equal(t, served.Load(), p.Metrics().TotalAllocations)
	require.Equal(t, busy.Load(), p.Metrics().FailedAllocations,
		"every valve bounce on the allocate path was counted")
	require.Zero(t, p.Metrics().BlocksUsed)
	require.NoError(t, p.Close())
}

func Test_Pool_ValidatorAgreesWithLifecycle(t *testing.T) {
	p := mustPool(t)
	require.True(t, strategy.ValidStrategy(p))

	buf, err := p.Allocate(16)
	require.NoError(t, err)
	require.True(t, strategy.ValidDeallocation(p, buf))

	require.NoError(t, p.Deallocate(buf))
	require.NoError(t, p.Close())
	require.False(t, strategy.ValidStrategy(p))
	require.False(t, strategy.ValidDeallocation(p, buf))
}
