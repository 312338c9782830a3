package atomicx

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_IncChecked_CountsExactly(t *testing.T) {
	const workers = 16
	const perWorker = 1000

	var c atomic.Uint64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				require.NoError(t, IncChecked(&c))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(workers*perWorker), c.Load())
}

func Test_IncChecked_RefusesToWrap(t *testing.T) {
	var c atomic.Uint64
	c.Store(math.MaxUint64)

	err := IncChecked(&c)
	require.ErrorIs(t, err, ErrCounterSaturated)
	require.Equal(t, uint64(math.MaxUint64), c.Load())
}

func Test_AddWithBackoff_NoLostUpdates(t *testing.T) {
	const workers = 8
	const perWorker = 500

	var c atomic.Uint64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				AddWithBackoff(&c, 3)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(workers*perWorker*3), c.Load())
}

func Test_AddWithBackoff_ReturnsNewValue(t *testing.T) {
	var c atomic.Uint64
	require.Equal(t, uint64(5), AddWithBackoff(&c, 5))
	require.Equal(t, uint64(12), AddWithBackoff(&c, 7))
}

func Test_SubWithFloor_NeverUnderflows(t *testing.T) {
	var c atomic.Uint64
	c.Store(10)

	require.True(t, SubWithFloor(&c, 4))
	require.Equal(t, uint64(6), c.Load())

	// Larger than the remaining value: floored, untouched.
	require.False(t, SubWithFloor(&c, 7))
	require.Equal(t, uint64(6), c.Load())

	require.True(t, SubWithFloor(&c, 6))
	require.Equal(t, uint64(0), c.Load())
}

func Test_SubWithFloor_PairsWithAdds(t *testing.T) {
	const workers = 8
	const perWorker = 200

	var c atomic.Uint64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				AddWithBackoff(&c, 8)
				require.True(t, SubWithFloor(&c, 8))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(0), c.Load())
}

func Test_StoreMax_IsMonotone(t *testing.T) {
	var c atomic.Uint64

	StoreMax(&c, 100)
	require.Equal(t, uint64(100), c.Load())

	// Lower values never regress the stored maximum.
	StoreMax(&c, 5)
	require.Equal(t, uint64(100), c.Load())

	StoreMax(&c, 200)
	require.Equal(t, uint64(200), c.Load())
}

func Test_StoreMax_ConcurrentKeepsLargest(t *testing.T) {
	const workers = 16

	var c atomic.Uint64
	var wg sync.WaitGroup
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				StoreMax(&c, v*uint64(i))
			}
		}(uint64(w))
	}
	wg.Wait()

	require.Equal(t, uint64(workers*99), c.Load())
}

func Test_Backoff_AttemptZeroReturnsImmediately(t *testing.T) {
	start := time.Now()
	Backoff(0)
	require.Less(t, time.Since(start), 10*time.Millisecond)
}

func Test_Backoff_DelayIsBounded(t *testing.T) {
	// Even deep attempts stay near the cap plus jitter.
	start := time.Now()
	Backoff(20)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 1000*time.Microsecond)
	require.Less(t, elapsed, 100*time.Millisecond)
}
