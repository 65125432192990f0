package main

import (
	"fmt"

	"github.com/hupe1980/compacta"
	"github.com/spf13/cobra"
)

const mb = 1 << 20

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Replay the reference allocation scenario",
		Long: `The demo command initializes the default allocator with 10MB arenas,
allocates 2MB and 20MB buffers plus a 1MB object through handles, releases
everything and shuts the allocator down, reporting the layout after each step.

Example:
  compacta demo
  compacta demo --no-compaction --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
	addAllocatorFlags(cmd)
	return cmd
}

// megabyteObject stands in for a 1MB class placed through the allocator.
type megabyteObject struct {
	memory [mb]byte
}

type demoStep struct {
	Step          string  `json:"step"`
	Addr          string  `json:"addr,omitempty"`
	Arenas        int     `json:"arenas"`
	TotalReserved int64   `json:"total_reserved"`
	LiveBytes     int64   `json:"live_bytes"`
	Fragmentation float64 `json:"fragmentation_percent"`
}

type demoResult struct {
	Steps []demoStep     `json:"steps"`
	Final compacta.Stats `json:"final"`
}

func runDemo() error {
	opts, err := allocatorOptions(10 * mb)
	if err != nil {
		return err
	}
	size := arenaSize
	if size <= 0 {
		size = 10 * mb
	}

	if err := compacta.Initialize(size, !noCompaction, opts...); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer compacta.Shutdown()
	a := compacta.Default()

	var result demoResult
	record := func(step string, addr compacta.Addr) {
		s := a.Stats()
		ds := demoStep{
			Step:          step,
			Arenas:        s.Arenas,
			TotalReserved: s.TotalReserved,
			LiveBytes:     s.LiveBytes,
			Fragmentation: s.FragmentationPercent,
		}
		if !addr.IsNil() {
			ds.Addr = addr.String()
		}
		result.Steps = append(result.Steps, ds)
		printVerbose("%-28s addr=%-14s arenas=%d reserved=%s live=%s\n",
			step, ds.Addr, ds.Arenas, formatBytes(ds.TotalReserved), formatBytes(ds.LiveBytes))
	}
	record("initialize", 0)

	// 2MB fits the first arena.
	addr, err := compacta.Allocate(2 * mb)
	if err != nil {
		return err
	}
	small, err := compacta.MakeHandle[byte](addr)
	if err != nil {
		return err
	}
	record("allocate 2MB", small.Addr())

	// 20MB exceeds the arena size and gets an arena of its own.
	addr, err = compacta.Allocate(20 * mb)
	if err != nil {
		return err
	}
	large, err := compacta.MakeHandle[byte](addr)
	if err != nil {
		return err
	}
	record("allocate 20MB", large.Addr())

	obj, err := compacta.AllocateHandle[megabyteObject](a)
	if err != nil {
		return err
	}
	obj.Value().memory[0] = 1
	record("construct 1MB object", obj.Addr())

	small.Release()
	record("release 2MB", 0)
	large.Release()
	record("release 20MB", 0)
	obj.Release()
	record("release 1MB object", 0)

	result.Final = a.Stats()

	if jsonOut {
		return printJSON(result)
	}

	printInfo("\nDemo complete:\n")
	printStats(result.Final)
	return nil
}
