// Package testutil provides helpers shared by the concurrency test suites.
package testutil

import (
	"math/rand"
	"sync"
	"testing"
)

// RunWorkers starts n goroutines executing fn and blocks until every one
// has returned. Workers spin on a common start barrier so they contend
// from the first operation rather than ramping up one by one.
func RunWorkers(t *testing.T, n int, fn func(worker int)) {
	t.Helper()

	var (
		start sync.WaitGroup
		done  sync.WaitGroup
	)
	start.Add(1)
	done.Add(n)

	for w := 0; w < n; w++ {
		go func(worker int) {
			defer done.Done()
			start.Wait()
			fn(worker)
		}(w)
	}

	start.Done()
	done.Wait()
}

// SeededRand returns a deterministic source for property tests. Keeping
// the seed in the test makes failures replayable.
func SeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
