package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/compacta"
	"github.com/hupe1980/compacta/codec"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool

	// Allocator flags
	arenaSize    int
	noCompaction bool
	heapMemory   bool
	memoryLimit  int64
	staleCheck   bool
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "compacta",
	Short: "Exercise and inspect the compacting arena allocator",
	Long: `compacta drives the compacting arena allocator: it replays the reference
demonstration, runs randomized workloads that verify every allocation survives
compaction, and inspects layout reports written by those runs.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Allocator log level (debug, info, warn, error); off when empty")
}

// addAllocatorFlags registers the flags that configure an allocator.
func addAllocatorFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&arenaSize, "arena-size", 0, "Default arena size in bytes (0 = command default)")
	cmd.Flags().BoolVar(&noCompaction, "no-compaction", false, "Leave freed ranges in place instead of compacting")
	cmd.Flags().BoolVar(&heapMemory, "heap", false, "Back arenas with Go heap memory instead of anonymous mappings")
	cmd.Flags().Int64Var(&memoryLimit, "memory-limit", 0, "Cap on bytes reserved by arenas (0 = unlimited)")
	cmd.Flags().BoolVar(&staleCheck, "stale-check", false, "Track addresses invalidated by compaction")
}

// allocatorOptions converts the allocator flags into options. defaultArena
// applies when --arena-size is not set.
func allocatorOptions(defaultArena int) ([]compacta.Option, error) {
	size := arenaSize
	if size <= 0 {
		size = defaultArena
	}
	opts := []compacta.Option{
		compacta.WithDefaultArenaSize(size),
		compacta.WithCompaction(!noCompaction),
		compacta.WithMemoryLimit(memoryLimit),
		compacta.WithStaleTracking(staleCheck),
	}
	if heapMemory {
		opts = append(opts, compacta.WithHeapMemory())
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return nil, err
	}
	opts = append(opts, compacta.WithLogger(logger))
	return opts, nil
}

func newLogger(level string) (*compacta.Logger, error) {
	if level == "" {
		return compacta.NoopLogger(), nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if jsonOut {
		return compacta.NewJSONLogger(l), nil
	}
	return compacta.NewTextLogger(l), nil
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	data, err := codec.GoJSON{}.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func printStats(s compacta.Stats) {
	printInfo("  Arenas: %d (%s reserved)\n", s.Arenas, formatBytes(s.TotalReserved))
	printInfo("  Used: %s, live: %s in %d allocations\n",
		formatBytes(s.UsedBytes), formatBytes(s.LiveBytes), s.LiveRecords)
	printInfo("  Fragmentation: %.2f%%\n", s.FragmentationPercent)
	printVerbose("  Ledger: %d chunks, %d slots, %d retired\n", s.LedgerChunks, s.LedgerSlots, s.RetiredSlots)
	printVerbose("  Operations: %d allocations, %d deallocations, %d compactions (%s moved)\n",
		s.Allocations, s.Deallocations, s.Compactions, formatBytes(s.BytesMoved))
	if s.MemoryLimit > 0 {
		printVerbose("  Budget: peak %s of %s, %d rejected\n",
			formatBytes(s.PeakReserved), formatBytes(s.MemoryLimit), s.Rejected)
	}
}
