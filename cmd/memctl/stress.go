package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arenalab/memkit/mem/metrics"
	"github.com/arenalab/memkit/mem/pool"
	"github.com/arenalab/memkit/mem/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var (
	stressStrategy string
	stressWorkers  int
	stressOps      int
	stressMetrics  bool
)

// stressSizes cycles through the request sizes the workers issue. 248 is
// exactly one pool block once the run header is accounted for.
var stressSizes = []uint64{32, 64, 128, 248, 512, 1024}

func init() {
	cmd := newStressCmd()
	cmd.Flags().StringVar(&stressStrategy, "strategy", "default", "Strategy to load: default or pool")
	cmd.Flags().IntVar(&stressWorkers, "workers", 8, "Concurrent workers")
	cmd.Flags().IntVar(&stressOps, "ops", 1000, "Operations per worker")
	cmd.Flags().BoolVar(&stressMetrics, "metrics", false, "Print Prometheus metrics after the run")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Put a strategy under concurrent allocate/free load",
		Long: `The stress command hammers one strategy instance from several
workers, each alternating allocations and deallocations, then prints a
run summary together with the strategy's pattern and leak reports.

Example:
  memctl stress --strategy default --workers 8 --ops 1000
  memctl stress --strategy pool --workers 4 --ops 500 --metrics
  memctl stress --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

// stressSummary is the machine-readable run result.
type stressSummary struct {
	Strategy  string `json:"strategy"`
	Workers   int    `json:"workers"`
	OpsPer    int    `json:"ops_per_worker"`
	Succeeded uint64 `json:"succeeded"`
	Rejected  uint64 `json:"rejected"`
	Failed    uint64 `json:"failed"`
	Elapsed   string `json:"elapsed"`
}

func runStress() error {
	if stressWorkers <= 0 || stressOps <= 0 {
		return fmt.Errorf("workers and ops must be positive (got %d, %d)", stressWorkers, stressOps)
	}

	var (
		s        strategy.Strategy
		poolStrt *pool.Strategy
		defStrt  *strategy.Default
		err      error
	)
	switch stressStrategy {
	case "pool":
		// The default admission valve is sized for a handful of callers;
		// open it up so the workers contend on the bitmap, not the door.
		poolStrt, err = pool.New(pool.WithMaxConcurrentOps(uint64(stressWorkers) + 3))
		s = poolStrt
	case "default":
		defStrt, err = strategy.NewDefault()
		s = defStrt
	default:
		return fmt.Errorf("unknown strategy %q (want default or pool)", stressStrategy)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s strategy: %w", stressStrategy, err)
	}

	printVerbose("Running %d workers x %d ops against the %s strategy\n",
		stressWorkers, stressOps, stressStrategy)

	var succeeded, rejected, failed atomic.Uint64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < stressWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			var held []byte
			for i := 0; i < stressOps; i++ {
				if held != nil {
					if err := s.Deallocate(held); err != nil {
						failed.Add(1)
					}
					held = nil
					continue
				}
				size := stressSizes[(worker+i)%len(stressSizes)]
				buf, err := s.Allocate(size)
				switch {
				case err == nil:
					buf[0] = byte(worker)
					held = buf
					succeeded.Add(1)
				case errors.Is(err, pool.ErrBusy) || errors.Is(err, pool.ErrExhausted):
					rejected.Add(1)
				default:
					failed.Add(1)
				}
			}
			if held != nil {
				if err := s.Deallocate(held); err != nil {
					failed.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	summary := stressSummary{
		Strategy:  stressStrategy,
		Workers:   stressWorkers,
		OpsPer:    stressOps,
		Succeeded: succeeded.Load(),
		Rejected:  rejected.Load(),
		Failed:    failed.Load(),
		Elapsed:   time.Since(start).String(),
	}

	if jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printInfo("\nStress Run Summary:\n")
		printInfo("  Strategy: %s\n", summary.Strategy)
		printInfo("  Workers: %d x %d ops\n", summary.Workers, summary.OpsPer)
		printInfo("  Allocations: %d succeeded, %d rejected, %d failed\n",
			summary.Succeeded, summary.Rejected, summary.Failed)
		printInfo("  Elapsed: %s\n", summary.Elapsed)

		switch {
		case defStrt != nil:
			printInfo("  Total Allocated: %d bytes\n", defStrt.TotalAllocated())
			printInfo("  Total Freed: %d bytes\n", defStrt.TotalFreed())
			printInfo("  Peak Usage: %d bytes\n", defStrt.PeakUsage())
			printInfo("\n%s\n", defStrt.Ledger().AnalyzePatterns())
			printInfo("%s", defStrt.Ledger().CheckLeaks())
		case poolStrt != nil:
			m := poolStrt.Metrics()
			printInfo("  Blocks Used: %d / %d\n", m.BlocksUsed, m.BlockCapacity)
			printInfo("  Total Allocations: %d\n", m.TotalAllocations)
			printInfo("  Failed Allocations: %d\n", m.FailedAllocations)
		}
	}

	if stressMetrics {
		if err := printMetrics(defStrt, poolStrt); err != nil {
			return err
		}
	}

	if defStrt != nil {
		if err := defStrt.Close(); err != nil {
			return fmt.Errorf("strategy close: %w", err)
		}
	}
	if poolStrt != nil {
		if err := poolStrt.Close(); err != nil {
			return fmt.Errorf("pool close: %w", err)
		}
	}
	return nil
}

// printMetrics registers the matching collector in a fresh registry and
// writes one scrape in the Prometheus text exposition format.
func printMetrics(defStrt *strategy.Default, poolStrt *pool.Strategy) error {
	reg := prometheus.NewRegistry()
	if defStrt != nil {
		if err := reg.Register(metrics.NewLedgerCollector(defStrt.Ledger())); err != nil {
			return err
		}
	}
	if poolStrt != nil {
		if err := reg.Register(metrics.NewPoolCollector(poolStrt)); err != nil {
			return err
		}
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics gather: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}
