// Package metrics exports allocation ledgers and pool counters as
// Prometheus collectors. A collector snapshots its source on every
// scrape and emits const metrics, so scraping adds nothing to the
// allocation paths themselves.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arenalab/memkit/mem/pool"
	"github.com/arenalab/memkit/mem/stats"
)

const namespace = "memkit"

// LedgerCollector exposes a stats.Ledger to Prometheus. Every metric
// carries an instance label with the ledger's ID, so collectors for
// distinct ledgers coexist in one registry.
type LedgerCollector struct {
	ledger *stats.Ledger

	allocations   *prometheus.Desc
	deallocations *prometheus.Desc
	active        *prometheus.Desc
	currentBytes  *prometheus.Desc
	peakBytes     *prometheus.Desc
	leakedBytes   *prometheus.Desc
	sizes         *prometheus.Desc
}

var _ prometheus.Collector = (*LedgerCollector)(nil)

// NewLedgerCollector returns a collector scraping l.
func NewLedgerCollector(l *stats.Ledger) *LedgerCollector {
	labels := prometheus.Labels{"instance": l.ID()}
	return &LedgerCollector{
		ledger: l,
		allocations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "allocations_total"),
			"Total allocations recorded by the ledger.",
			nil, labels,
		),
		deallocations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "deallocations_total"),
			"Total deallocations recorded by the ledger.",
			nil, labels,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "active_allocations"),
			"Live allocations in the leak-tracking table.",
			nil, labels,
		),
		currentBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "current_bytes"),
			"Bytes currently outstanding.",
			nil, labels,
		),
		peakBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "peak_bytes"),
			"Highest outstanding byte total observed.",
			nil, labels,
		),
		leakedBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "leaked_bytes"),
			"Byte total of live leak-tracking records.",
			nil, labels,
		),
		sizes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "allocation_size_bytes"),
			"Requested allocation sizes by histogram bucket.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.allocations
	ch <- c.deallocations
	ch <- c.active
	ch <- c.currentBytes
	ch <- c.peakBytes
	ch <- c.leakedBytes
	ch <- c.sizes
}

// Collect implements prometheus.Collector.
func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	r := c.ledger.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.allocations, prometheus.CounterValue, float64(r.Allocations))
	ch <- prometheus.MustNewConstMetric(c.deallocations, prometheus.CounterValue, float64(r.Deallocations))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(r.ActiveTracked))
	ch <- prometheus.MustNewConstMetric(c.currentBytes, prometheus.GaugeValue, float64(r.CurrentBytes))
	ch <- prometheus.MustNewConstMetric(c.peakBytes, prometheus.GaugeValue, float64(r.PeakBytes))
	ch <- prometheus.MustNewConstMetric(c.leakedBytes, prometheus.GaugeValue, float64(r.LeakedBytes))
	ch <- sizeHistogram(c.sizes, r)
}

// sizeHistogram folds the report's per-bucket counts into the cumulative
// form Prometheus expects. The unbounded bucket lands in the implicit
// +Inf count; the byte sum is estimated from the same bucket
// representatives as Report.AverageSize.
func sizeHistogram(desc *prometheus.Desc, r stats.Report) prometheus.Metric {
	buckets := make(map[float64]uint64, len(r.Distribution)-1)
	var count, cumulative uint64
	for _, b := range r.Distribution {
		count += b.Count
		if b.Threshold == math.MaxUint64 {
			continue
		}
		cumulative += b.Count
		buckets[float64(b.Threshold)] = cumulative
	}
	return prometheus.MustNewConstHistogram(desc, count, r.AverageSize*float64(count), buckets)
}

// PoolCollector exposes a pool.Strategy's counters to Prometheus, one
// metric per Metrics field, labeled with the pool's instance ID.
type PoolCollector struct {
	pool *pool.Strategy

	blocksUsed    *prometheus.Desc
	blockCapacity *prometheus.Desc
	blockSize     *prometheus.Desc
	maxAllocation *prometheus.Desc
	allocations   *prometheus.Desc
	failed        *prometheus.Desc
	inFlight      *prometheus.Desc
}

var _ prometheus.Collector = (*PoolCollector)(nil)

// NewPoolCollector returns a collector scraping p.
func NewPoolCollector(p *pool.Strategy) *PoolCollector {
	labels := prometheus.Labels{"instance": p.ID()}
	return &PoolCollector{
		pool: p,
		blocksUsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "blocks_used"),
			"Blocks currently claimed in the arena.",
			nil, labels,
		),
		blockCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "block_capacity"),
			"Total number of blocks in the arena.",
			nil, labels,
		),
		blockSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "block_size_bytes"),
			"Size of one arena block.",
			nil, labels,
		),
		maxAllocation: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "max_allocation_bytes"),
			"Largest single request the arena can serve.",
			nil, labels,
		),
		allocations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "allocations_total"),
			"Total allocations served by the pool.",
			nil, labels,
		),
		failed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "failed_allocations_total"),
			"Allocations rejected by admission, geometry or exhaustion.",
			nil, labels,
		),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "inflight_ops"),
			"Operations currently inside the admission valve.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.blocksUsed
	ch <- c.blockCapacity
	ch <- c.blockSize
	ch <- c.maxAllocation
	ch <- c.allocations
	ch <- c.failed
	ch <- c.inFlight
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.pool.Metrics()

	ch <- prometheus.MustNewConstMetric(c.blocksUsed, prometheus.GaugeValue, float64(m.BlocksUsed))
	ch <- prometheus.MustNewConstMetric(c.blockCapacity, prometheus.GaugeValue, float64(m.BlockCapacity))
	ch <- prometheus.MustNewConstMetric(c.blockSize, prometheus.GaugeValue, float64(m.BlockSize))
	ch <- prometheus.MustNewConstMetric(c.maxAllocation, prometheus.GaugeValue, float64(m.MaxAllocation))
	ch <- prometheus.MustNewConstMetric(c.allocations, prometheus.CounterValue, float64(m.TotalAllocations))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(m.FailedAllocations))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(m.ConcurrentOps))
}
