package compacta

import (
	"log/slog"

	"github.com/hupe1980/compacta/internal/mmap"
)

// DefaultArenaSize is the arena size used when none is configured (1MB).
const DefaultArenaSize = 1 << 20

type options struct {
	defaultArenaSize  int
	compaction        bool
	memoryLimit       int64
	source            mmap.Source
	staleTracking     bool
	fragmentationWarn float64
	metricsCollector  MetricsCollector
	logger            *Logger
}

// Option configures an Allocator.
type Option func(*options)

// WithDefaultArenaSize sets the capacity of newly created arenas.
// Requests larger than this get an arena of exactly their size.
//
// If size <= 0, DefaultArenaSize is used.
func WithDefaultArenaSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = DefaultArenaSize
		}
		o.defaultArenaSize = size
	}
}

// WithCompaction enables or disables compaction on free (enabled by default).
//
// With compaction, freeing slides every later allocation of the same arena
// down over the hole. Only Handles survive this; raw addresses captured
// before the free go stale. Without compaction freed ranges are zero-filled
// and never reused.
func WithCompaction(enabled bool) Option {
	return func(o *options) {
		o.compaction = enabled
	}
}

// WithMemoryLimit caps the total bytes reserved by arenas.
// Allocations that would need a new arena beyond the limit fail with
// ErrOutOfMemory. If limit <= 0, reservations are only tracked.
func WithMemoryLimit(limit int64) Option {
	return func(o *options) {
		o.memoryLimit = limit
	}
}

// WithHeapMemory backs arenas with Go heap buffers instead of anonymous
// off-heap mappings.
func WithHeapMemory() Option {
	return func(o *options) {
		o.source = mmap.Heap
	}
}

// WithStaleTracking records every address invalidated by a free or a
// compaction so Check can tell stale addresses from foreign ones.
// Intended for debugging; it costs memory proportional to the number of
// invalidated addresses.
func WithStaleTracking(enabled bool) Option {
	return func(o *options) {
		o.staleTracking = enabled
	}
}

// WithFragmentationWarning logs a throttled warning whenever fragmentation
// after a free reaches percent. If percent <= 0, no warning is logged.
func WithFragmentationWarning(percent float64) Option {
	return func(o *options) {
		o.fragmentationWarn = percent
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &compacta.BasicMetricsCollector{}
//	a, _ := compacta.New(compacta.WithMetricsCollector(metrics))
//	// ... use a ...
//	stats := metrics.GetStats()
//	fmt.Printf("Allocs: %d, moved: %d bytes\n", stats.AllocateCount, stats.BytesMoved)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := compacta.NewJSONLogger(slog.LevelInfo)
//	a, _ := compacta.New(compacta.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		defaultArenaSize: DefaultArenaSize,
		compaction:       true,
		source:           mmap.Anon,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
