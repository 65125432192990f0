package main

import (
	"fmt"
	"strings"

	"github.com/hupe1980/compacta/report"
	"github.com/spf13/cobra"
)

var layoutRecords bool

func init() {
	rootCmd.AddCommand(newLayoutCmd())
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout <report>",
		Short: "Show the arena layout stored in a report file",
		Long: `The layout command reads a report written by "compacta stress --report"
and prints every arena with its fill level. With --records each live
allocation is listed in allocation order.

Example:
  compacta layout run.cmpl
  compacta layout run.cmpl --records
  compacta layout run.cmpl --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(args)
		},
	}
	cmd.Flags().BoolVar(&layoutRecords, "records", false, "List every live allocation")
	return cmd
}

func runLayout(args []string) error {
	path := args[0]

	printVerbose("Reading report: %s\n", path)

	snap, err := report.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	if jsonOut {
		return printJSON(snap)
	}

	printInfo("\nReport: %s\n", path)
	if snap.Label != "" {
		printInfo("  Label: %s\n", snap.Label)
	}
	printInfo("  Captured: %s\n", snap.CapturedAt.Format("2006-01-02 15:04:05 MST"))
	printInfo("  Compaction: %t, default arena size %s\n",
		snap.Layout.Compaction, formatBytes(int64(snap.Layout.DefaultArenaSize)))
	printStats(snap.Stats)

	printInfo("\nArenas:\n")
	for _, ar := range snap.Layout.Arenas {
		marker := " "
		if ar.Current {
			marker = "*"
		}
		printInfo("%s %4d  %s  %10s / %-10s  %d allocations\n",
			marker, ar.ID, fillBar(ar.Used, ar.LiveBytes, ar.Capacity, 32),
			formatBytes(int64(ar.Used)), formatBytes(int64(ar.Capacity)), len(ar.Records))

		if layoutRecords {
			for _, r := range ar.Records {
				printInfo("        slot %-6d %-16s offset %-10d size %d\n", r.Slot, r.Addr, r.Offset, r.Size)
			}
		}
	}
	return nil
}

// fillBar renders capacity as width cells: '#' live, '~' used but dead,
// '.' free.
func fillBar(used, live, capacity, width int) string {
	if capacity <= 0 {
		return "[" + strings.Repeat(" ", width) + "]"
	}
	liveCells := live * width / capacity
	usedCells := max(used*width/capacity, liveCells)
	return "[" + strings.Repeat("#", liveCells) +
		strings.Repeat("~", usedCells-liveCells) +
		strings.Repeat(".", width-usedCells) + "]"
}
