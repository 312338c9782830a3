package main

import (
	"errors"
	"fmt"

	"github.com/arenalab/memkit/mem/strategy"
	"github.com/spf13/cobra"
)

var (
	leaksCount int
	leaksHold  int
	leaksSize  uint64
)

func init() {
	cmd := newLeaksCmd()
	cmd.Flags().IntVar(&leaksCount, "count", 10, "Buffers to allocate")
	cmd.Flags().IntVar(&leaksHold, "hold", 3, "Buffers to leave unfreed")
	cmd.Flags().Uint64Var(&leaksSize, "size", 256, "Bytes per buffer")
	rootCmd.AddCommand(cmd)
}

func newLeaksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaks",
		Short: "Provoke leaks and show the shutdown report",
		Long: `The leaks command allocates a batch of buffers, frees all but a
few, and shows what the leak tracker reports. Closing the strategy then
demonstrates the drain-then-report shutdown contract.

Example:
  memctl leaks
  memctl leaks --count 20 --hold 5 --size 512`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaks()
		},
	}
	return cmd
}

func runLeaks() error {
	if leaksCount <= 0 || leaksHold < 0 || leaksHold > leaksCount {
		return fmt.Errorf("hold must be between 0 and count (got count=%d hold=%d)",
			leaksCount, leaksHold)
	}

	s, err := strategy.NewDefault()
	if err != nil {
		return fmt.Errorf("failed to create default strategy: %w", err)
	}

	printVerbose("Allocating %d buffers of %d bytes\n", leaksCount, leaksSize)
	buffers := make([][]byte, 0, leaksCount)
	for i := 0; i < leaksCount; i++ {
		buf, err := s.Allocate(leaksSize)
		if err != nil {
			return fmt.Errorf("allocation %d failed: %w", i+1, err)
		}
		buffers = append(buffers, buf)
	}

	printVerbose("Freeing %d of them, holding %d back\n", leaksCount-leaksHold, leaksHold)
	for _, buf := range buffers[leaksHold:] {
		if err := s.Deallocate(buf); err != nil {
			return fmt.Errorf("deallocation failed: %w", err)
		}
	}

	if jsonOut {
		if err := printJSON(s.Ledger().Snapshot()); err != nil {
			return err
		}
	} else {
		printInfo("%s\n", s.Ledger().CheckLeaks())
	}

	err = s.Close()
	switch {
	case leaksHold == 0 && err == nil:
		printInfo("Strategy closed cleanly, nothing leaked.\n")
	case errors.Is(err, strategy.ErrLeaksDetected):
		printInfo("Close reported the held buffers: %v\n", err)
	case err != nil:
		return fmt.Errorf("strategy close: %w", err)
	default:
		printError("expected a leak report for %d held buffers, got a clean close\n", leaksHold)
	}
	return nil
}
