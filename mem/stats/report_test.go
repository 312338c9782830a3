package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Snapshot_EmptyLedger(t *testing.T) {
	l := New()
	r := l.Snapshot()

	require.Zero(t, r.Allocations)
	require.Zero(t, r.AverageSize)
	require.Zero(t, r.Frequency)
	require.Empty(t, r.Leaks)
	for i := range r.Distribution {
		require.Zero(t, r.Distribution[i].Count)
	}
	require.Equal(t, uint64(32), r.Distribution[0].Threshold)
	require.Equal(t, uint64(4096), r.Distribution[6].Threshold)
}

func Test_Snapshot_AverageUsesBucketRepresentatives(t *testing.T) {
	tests := []struct {
		name  string
		sizes []uint64
		want  float64
	}{
		// The first bucket is represented by half its threshold, the rest
		// by their own threshold, and the open-ended bucket by the
		// largest finite threshold.
		{"single small allocation", []uint64{10}, 16},
		{"single mid allocation", []uint64{1000}, 1024},
		{"small and mid", []uint64{10, 1000}, (16 + 1024) / 2.0},
		{"oversized clamps to largest threshold", []uint64{1 << 40}, 4096},
		{"mixed", []uint64{1, 33, 65, 5000}, (16 + 64 + 128 + 4096) / 4.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			for i, size := range tt.sizes {
				l.RecordAllocation(uintptr(0x1000+i*16), size, Site{})
			}
			require.InDelta(t, tt.want, l.Snapshot().AverageSize, 0.001)
		})
	}
}

func Test_Snapshot_FrequencyNeedsTwoSamples(t *testing.T) {
	l := New()
	l.RecordAllocation(0x1000, 64, Site{})
	require.Zero(t, l.Snapshot().Frequency, "one sample spans no time")
}

func Test_Snapshot_FrequencyFromHistorySpan(t *testing.T) {
	l := New()
	for i := 0; i < 4; i++ {
		l.RecordAllocation(uintptr(0x1000+i*16), 64, Site{})
	}

	// Recorded stamps land within the same millisecond; spread them out
	// so the span covers a whole number of seconds.
	latest := l.history[3].stamp.Load()
	l.history[0].stamp.Store(latest - 2000)

	require.Equal(t, uint64(2), l.Snapshot().Frequency, "4 allocations over 2 seconds")
}

func Test_Snapshot_LeaksCopyLiveSlots(t *testing.T) {
	l := New()
	l.RecordAllocation(0x1000, 100, Site{File: "first.go", Line: 10})
	l.RecordAllocation(0x2000, 200, Site{File: "second.go", Line: 20})
	l.RecordAllocation(0x3000, 300, Site{File: "third.go", Line: 30})
	l.RecordDeallocation(0x2000)

	leaks := l.Snapshot().Leaks
	require.Len(t, leaks, 2)

	require.Equal(t, uintptr(0x1000), leaks[0].Address)
	require.Equal(t, uint64(100), leaks[0].Size)
	require.Equal(t, "first.go", leaks[0].File)
	require.Equal(t, 10, leaks[0].Line)
	require.Positive(t, leaks[0].Timestamp)

	require.Equal(t, uintptr(0x3000), leaks[1].Address)
	require.Equal(t, uint64(300), leaks[1].Size)
}

func Test_Snapshot_LeakListIsCapped(t *testing.T) {
	l := New()
	for i := 0; i < MaxLeakReports+50; i++ {
		l.RecordAllocation(uintptr(0x1000+i*16), 8, Site{})
	}

	r := l.Snapshot()
	require.Equal(t, uint64(MaxLeakReports+50), r.ActiveTracked)
	require.Len(t, r.Leaks, MaxLeakReports)
}

func Test_AnalyzePatterns_RendersDistribution(t *testing.T) {
	l := New()
	l.RecordAllocation(0x1000, 10, Site{}) // first bucket, representative 16
	l.RecordAllocation(0x2000, 33, Site{}) // second bucket, representative 64

	want := "Memory Allocation Pattern Analysis:\n" +
		"================================\n" +
		"Average Allocation Size: 40.00 bytes\n" +
		"Allocation Frequency: 0/sec\n" +
		"\n" +
		"Size Distribution:\n" +
		"  ≤ 32 bytes: 1 allocations\n" +
		"  ≤ 64 bytes: 1 allocations\n" +
		"  ≤ 128 bytes: 0 allocations\n" +
		"  ≤ 256 bytes: 0 allocations\n" +
		"  ≤ 512 bytes: 0 allocations\n" +
		"  ≤ 1,024 bytes: 0 allocations\n" +
		"  ≤ 4,096 bytes: 0 allocations\n" +
		"  > 4,096 bytes: 0 allocations\n"
	require.Equal(t, want, l.AnalyzePatterns())
}

func Test_CheckLeaks_CleanLedger(t *testing.T) {
	l := New()

	want := "Memory Leak Analysis:\n" +
		"===================\n" +
		"Active Allocations: 0\n" +
		"Total Leaked Bytes: 0\n" +
		"\n" +
		"No memory leaks detected.\n"
	require.Equal(t, want, l.CheckLeaks())
}

func Test_CheckLeaks_ListsOutstandingAllocations(t *testing.T) {
	l := New()
	l.RecordAllocation(0x1000, 512, Site{File: "widget.go", Line: 77})

	out := l.CheckLeaks()
	require.Contains(t, out, "Active Allocations: 1\n")
	require.Contains(t, out, "Total Leaked Bytes: 512\n")
	require.Contains(t, out, "Detected Leaks:\n")
	require.Contains(t, out, "  Leak #1:\n")
	require.Contains(t, out, "    Address: 0x1000\n")
	require.Contains(t, out, "    Size: 512 bytes\n")
	require.Contains(t, out, "    Location: widget.go:77\n")
	require.Contains(t, out, "    Time: ")
	require.NotContains(t, out, "No memory leaks detected.")
}

func Test_Renderers_NilLedger(t *testing.T) {
	var l *Ledger
	require.Empty(t, l.AnalyzePatterns())
	require.Empty(t, l.CheckLeaks())
}
