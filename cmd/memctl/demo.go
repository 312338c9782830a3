package main

import (
	"fmt"

	"github.com/arenalab/memkit/mem/pool"
	"github.com/arenalab/memkit/mem/status"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the canonical pool-strategy walkthrough",
		Long: `The demo command runs the canonical pool walkthrough: one large
allocation spanning several blocks, a handful of single-block
allocations, a write to every buffer, and a full teardown.

Example:
  memctl demo
  memctl demo --verbose
  memctl demo --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
	return cmd
}

func runDemo() error {
	printVerbose("Creating pool strategy (%d blocks x %d bytes)\n", pool.BlockCount, pool.BlockSize)

	p, err := pool.New()
	if err != nil {
		return fmt.Errorf("failed to create pool strategy: %w", err)
	}
	defer p.Close()

	if p.Status() != status.StateActive {
		return fmt.Errorf("pool strategy is %s, expected %s", p.Status(), status.StateActive)
	}
	printInfo("Pool strategy ready (status: %s)\n", p.Status())

	// One multi-block allocation.
	large, err := p.Allocate(1024)
	if err != nil {
		return fmt.Errorf("1 KiB allocation failed: %w", err)
	}
	for i := range large {
		large[i] = 0x5A
	}
	printInfo("Allocated 1024 bytes (%d blocks in use)\n", p.Metrics().BlocksUsed)

	// Several single-block allocations.
	small := make([][]byte, 0, 5)
	for i := 0; i < 5; i++ {
		buf, err := p.Allocate(64)
		if err != nil {
			return fmt.Errorf("64-byte allocation %d failed: %w", i+1, err)
		}
		for j := range buf {
			buf[j] = byte(i)
		}
		small = append(small, buf)
	}
	printInfo("Allocated 5 x 64 bytes (%d blocks in use)\n", p.Metrics().BlocksUsed)

	for _, buf := range small {
		if err := p.Deallocate(buf); err != nil {
			return fmt.Errorf("small deallocation failed: %w", err)
		}
	}
	if err := p.Deallocate(large); err != nil {
		return fmt.Errorf("large deallocation failed: %w", err)
	}
	printInfo("Freed all allocations (%d blocks in use)\n", p.Metrics().BlocksUsed)

	m := p.Metrics()
	if jsonOut {
		return printJSON(m)
	}

	printInfo("\nPool Metrics:\n")
	printInfo("  Blocks Used: %d / %d\n", m.BlocksUsed, m.BlockCapacity)
	printInfo("  Total Allocations: %d\n", m.TotalAllocations)
	printInfo("  Failed Allocations: %d\n", m.FailedAllocations)
	return nil
}
