package main

import (
	"fmt"
	"strings"

	"github.com/arenalab/memkit/mem/comm"
	"github.com/arenalab/memkit/mem/status"
	"github.com/spf13/cobra"
)

var statesComm bool

func init() {
	cmd := newStatesCmd()
	cmd.Flags().BoolVar(&statesComm, "comm", false, "Show the connection lifecycle instead of the strategy one")
	rootCmd.AddCommand(cmd)
}

func newStatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "states",
		Short: "Print a lifecycle transition matrix walkthrough",
		Long: `The states command walks every (from, to) pair of a lifecycle
matrix and shows whether the transition is allowed. By default it prints
the four-state strategy lifecycle; --comm switches to the seven-state
connection lifecycle.

Example:
  memctl states
  memctl states --comm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStates()
		},
	}
	return cmd
}

func runStates() error {
	if statesComm {
		states := []comm.State{
			comm.StateUninitialized, comm.StateInitialized, comm.StateConnecting,
			comm.StateConnected, comm.StateDisconnected, comm.StateError,
			comm.StateTransitioning,
		}
		out := renderMatrix("Connection lifecycle", len(states),
			func(i int) string { return states[i].String() },
			func(i, j int) bool { return comm.ValidTransition(states[i], states[j]) })
		printInfo("%s", out)
		return nil
	}

	states := []status.State{
		status.StateInitialized, status.StateActive,
		status.StateError, status.StateTransitioning,
	}
	out := renderMatrix("Strategy lifecycle", len(states),
		func(i int) string { return states[i].String() },
		func(i, j int) bool { return status.ValidTransition(states[i], states[j]) })
	printInfo("%s", out)
	return nil
}

// renderMatrix draws one lifecycle matrix as an aligned yes/no grid
// followed by the list of allowed transitions.
func renderMatrix(title string, n int, name func(int) string, allowed func(int, int) bool) string {
	width := 0
	for i := 0; i < n; i++ {
		if len(name(i)) > width {
			width = len(name(i))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s transition matrix (rows: from, columns: to):\n\n", title)

	fmt.Fprintf(&b, "  %-*s", width, "")
	for j := 0; j < n; j++ {
		fmt.Fprintf(&b, "  %-*s", width, name(j))
	}
	b.WriteByte('\n')

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  %-*s", width, name(i))
		for j := 0; j < n; j++ {
			mark := "-"
			if allowed(i, j) {
				mark = "yes"
			}
			fmt.Fprintf(&b, "  %-*s", width, mark)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nAllowed transitions:\n")
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if allowed(i, j) {
				fmt.Fprintf(&b, "  %s -> %s\n", name(i), name(j))
			}
		}
	}
	return b.String()
}
