package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/hupe1980/compacta"
	"github.com/hupe1980/compacta/codec"
	"github.com/hupe1980/compacta/promcollector"
	"github.com/hupe1980/compacta/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	stressOps       int
	stressWorkers   int
	stressSeed      uint64
	stressMaxSize   int
	stressFreeRatio float64
	stressReport    string
	stressCodec     string
	stressCompress  string
	stressMetrics   bool
)

func init() {
	rootCmd.AddCommand(newStressCmd())
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a randomized workload and verify data survives compaction",
		Long: `The stress command runs a seeded random mix of allocations and releases.
Every allocation is held through a handle and filled with a marker byte that
is verified before release, so any compaction bug shows up as corruption.

Each worker drives its own allocator. The first worker's final layout can be
written as a report for the layout command.

Example:
  compacta stress --ops 100000 --workers 4
  compacta stress --report run.cmpl --compress zstd --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context())
		},
	}
	addAllocatorFlags(cmd)
	cmd.Flags().IntVar(&stressOps, "ops", 10000, "Operations per worker")
	cmd.Flags().IntVar(&stressWorkers, "workers", 1, "Independent allocators run in parallel")
	cmd.Flags().Uint64Var(&stressSeed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&stressMaxSize, "max-size", 4096, "Largest allocation in bytes")
	cmd.Flags().Float64Var(&stressFreeRatio, "free-ratio", 0.45, "Probability that an operation releases a handle")
	cmd.Flags().StringVar(&stressReport, "report", "", "Write the first worker's final layout to this file")
	cmd.Flags().StringVar(&stressCodec, "codec", codec.Default.Name(), "Report codec (json, go-json)")
	cmd.Flags().StringVar(&stressCompress, "compress", "none", "Report compression (none, lz4, zstd)")
	cmd.Flags().BoolVar(&stressMetrics, "metrics", false, "Print Prometheus metrics after the run")
	return cmd
}

var errCorruption = errors.New("allocation contents changed")

type stressResult struct {
	Worker      int            `json:"worker"`
	Seed        uint64         `json:"seed"`
	Operations  int            `json:"operations"`
	PeakLive    int            `json:"peak_live_handles"`
	Verified    int            `json:"verified_releases"`
	OutOfMemory int            `json:"out_of_memory"`
	Duration    time.Duration  `json:"duration_ns"`
	Stats       compacta.Stats `json:"stats"`
	snapshot    *report.Snapshot
}

func runStress(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if stressWorkers < 1 || stressOps < 1 || stressMaxSize < 1 {
		return errors.New("--workers, --ops and --max-size must be positive")
	}

	var (
		c       codec.Codec
		comp    report.Compression
		reg     *prometheus.Registry
		metrics compacta.MetricsCollector
	)
	if stressReport != "" {
		var ok bool
		if c, ok = codec.ByName(stressCodec); !ok {
			return fmt.Errorf("unknown codec %q", stressCodec)
		}
		var err error
		if comp, err = report.ParseCompression(stressCompress); err != nil {
			return err
		}
	}
	if stressMetrics {
		reg = prometheus.NewRegistry()
		pc, err := promcollector.New(reg, "compacta")
		if err != nil {
			return err
		}
		metrics = pc
	}

	opts, err := allocatorOptions(compacta.DefaultArenaSize)
	if err != nil {
		return err
	}
	if metrics != nil {
		opts = append(opts, compacta.WithMetricsCollector(metrics))
	}

	results := make([]stressResult, stressWorkers)
	g, ctx := errgroup.WithContext(ctx)
	for w := range stressWorkers {
		g.Go(func() error {
			res, err := stressWorker(ctx, w, stressSeed+uint64(w), opts)
			results[w] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if stressReport != "" && results[0].snapshot != nil {
		if err := report.WriteFile(stressReport, *results[0].snapshot, report.Options{Codec: c, Compression: comp}); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		printVerbose("Report written to %s\n", stressReport)
	}

	if jsonOut {
		return printJSON(results)
	}

	for _, r := range results {
		printInfo("\nWorker %d (seed %d): %d ops in %v, %d verified releases, peak %d live handles\n",
			r.Worker, r.Seed, r.Operations, r.Duration.Round(time.Millisecond), r.Verified, r.PeakLive)
		if r.OutOfMemory > 0 {
			printInfo("  Out of memory: %d allocations refused\n", r.OutOfMemory)
		}
		printStats(r.Stats)
	}

	if reg != nil {
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		printInfo("\nMetrics:\n")
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
				return err
			}
		}
	}
	return nil
}

type stressItem struct {
	h      *compacta.Handle[byte]
	marker byte
}

func stressWorker(ctx context.Context, worker int, seed uint64, opts []compacta.Option) (stressResult, error) {
	res := stressResult{Worker: worker, Seed: seed}

	a, err := compacta.New(opts...)
	if err != nil {
		return res, err
	}
	defer a.Close()

	rng := rand.New(rand.NewPCG(seed, uint64(worker)))
	start := time.Now()

	var live []stressItem
	release := func(i int) error {
		it := live[i]
		for _, b := range it.h.Bytes() {
			if b != it.marker {
				return fmt.Errorf("worker %d: handle at %s: %w", worker, it.h.Addr(), errCorruption)
			}
		}
		it.h.Release()
		live[i] = live[len(live)-1]
		live = live[:len(live)-1]
		res.Verified++
		return nil
	}

	for op := range stressOps {
		if op%1024 == 0 && ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Operations++

		if len(live) > 0 && rng.Float64() < stressFreeRatio {
			if err := release(rng.IntN(len(live))); err != nil {
				return res, err
			}
			continue
		}

		addr, err := a.Allocate(1 + rng.IntN(stressMaxSize))
		if errors.Is(err, compacta.ErrOutOfMemory) {
			res.OutOfMemory++
			continue
		}
		if err != nil {
			return res, err
		}
		h, err := compacta.NewHandle[byte](a, addr)
		if err != nil {
			a.Deallocate(addr)
			if errors.Is(err, compacta.ErrOutOfMemory) {
				res.OutOfMemory++
				continue
			}
			return res, err
		}
		marker := byte(rng.UintN(255) + 1)
		b := h.Bytes()
		for i := range b {
			b[i] = marker
		}
		live = append(live, stressItem{h: h, marker: marker})
		res.PeakLive = max(res.PeakLive, len(live))
	}

	res.Duration = time.Since(start)
	res.Stats = a.Stats()
	if worker == 0 && stressReport != "" {
		snap := report.Capture(a, fmt.Sprintf("stress seed=%d ops=%d", seed, stressOps))
		res.snapshot = &snap
	}

	for len(live) > 0 {
		if err := release(len(live) - 1); err != nil {
			return res, err
		}
	}
	return res, nil
}
