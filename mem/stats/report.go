package stats

// BucketCount is one histogram bucket: allocations of at most Threshold
// bytes that did not fit an earlier bucket.
type BucketCount struct {
	Threshold uint64 `json:"threshold"`
	Count     uint64 `json:"count"`
}

// Leak is one outstanding tracked allocation copied into a report.
type Leak struct {
	Address   uintptr `json:"address"`
	Size      uint64  `json:"size"`
	File      string  `json:"file"`
	Line      int     `json:"line"`
	Timestamp int64   `json:"timestamp_ms"`
}

// Report is a point-in-time copy of the ledger. The snapshot is not one
// atomic transaction: totals and slot contents may skew slightly under
// concurrent load.
type Report struct {
	Allocations   uint64 `json:"allocations"`
	Deallocations uint64 `json:"deallocations"`
	CurrentBytes  uint64 `json:"current_bytes"`
	PeakBytes     uint64 `json:"peak_bytes"`
	ActiveTracked uint64 `json:"active_tracked"`
	LeakedBytes   uint64 `json:"leaked_bytes"`

	// AverageSize estimates the mean allocation size from the bucket
	// representatives; Frequency estimates allocations per second from
	// the history ring's timestamp span.
	AverageSize float64 `json:"average_size"`
	Frequency   uint64  `json:"allocation_frequency"`

	Distribution [SizeBucketCount]BucketCount `json:"distribution"`
	Leaks        []Leak                       `json:"leaks,omitempty"`
}

// Snapshot copies the ledger into a caller-owned report, including up to
// MaxLeakReports outstanding allocations read under per-slot claims.
func (l *Ledger) Snapshot() Report {
	if l == nil {
		return Report{}
	}

	r := Report{
		Allocations:   l.allocs.Load(),
		Deallocations: l.frees.Load(),
		CurrentBytes:  l.currentBytes.Load(),
		PeakBytes:     l.peakBytes.Load(),
		ActiveTracked: l.activeCount.Load(),
		LeakedBytes:   l.leakedBytes.Load(),
	}

	var totalAllocs, weighted uint64
	for i := range l.buckets {
		count := l.buckets[i].Load()
		r.Distribution[i] = BucketCount{Threshold: sizeThresholds[i], Count: count}
		totalAllocs += count

		// Bucket representatives: half the first threshold for the
		// smallest bucket, the bucket's own threshold otherwise, and the
		// unbounded bucket clamped to the last finite threshold.
		rep := sizeThresholds[i]
		switch i {
		case 0:
			rep = sizeThresholds[0] / 2
		case SizeBucketCount - 1:
			rep = sizeThresholds[SizeBucketCount-2]
		}
		weighted += count * rep
	}
	if totalAllocs > 0 {
		r.AverageSize = float64(weighted) / float64(totalAllocs)
	}

	if idx := l.histIdx.Load(); idx >= 2 {
		latest := l.history[(idx-1)%PatternHistorySize].stamp.Load()
		earliest := l.history[0].stamp.Load()
		if secs := (latest - earliest) / 1000; secs > 0 {
			r.Frequency = r.Allocations / uint64(secs)
		}
	}

	if r.ActiveTracked > 0 {
		for i := range l.slots {
			if len(r.Leaks) >= MaxLeakReports {
				break
			}
			s := &l.slots[i]
			if s.valid.Load() == 0 {
				continue
			}
			if !s.inUse.CompareAndSwap(0, 1) {
				continue // slot busy; a snapshot is best-effort
			}
			if s.valid.Load() != 0 {
				r.Leaks = append(r.Leaks, Leak{
					Address:   s.addr.Load(),
					Size:      s.size.Load(),
					File:      s.site.File,
					Line:      s.site.Line,
					Timestamp: s.stamp.Load(),
				})
			}
			s.inUse.Store(0)
		}
	}

	return r
}
