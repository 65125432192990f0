package compacta

import (
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// Logger wraps slog.Logger with allocator-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger

	// fragWarn throttles high-fragmentation warnings.
	fragWarn *rate.Sometimes
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger:   slog.New(handler),
		fragWarn: &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithArena adds an arena id field to the logger.
func (l *Logger) WithArena(id uint32) *Logger {
	return &Logger{Logger: l.Logger.With("arena", id), fragWarn: l.fragWarn}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name), fragWarn: l.fragWarn}
}

// LogInitialize logs allocator start-up.
func (l *Logger) LogInitialize(defaultArenaSize int, compaction bool, anonymous bool) {
	l.Info("allocator initialized",
		"default_arena_size", defaultArenaSize,
		"compaction", compaction,
		"off_heap", anonymous,
	)
}

// LogAllocate logs an allocation.
func (l *Logger) LogAllocate(size int, addr Addr, err error) {
	if err != nil {
		l.Error("allocate failed",
			"size", size,
			"error", err,
		)
	} else {
		l.Debug("allocate completed",
			"size", size,
			"addr", addr.String(),
		)
	}
}

// LogArenaCreated logs the reservation of a new arena.
func (l *Logger) LogArenaCreated(id uint32, capacity int, requested int) {
	l.WithArena(id).Info("arena created",
		"capacity", capacity,
		"requested", requested,
	)
}

// LogDeallocate logs a deallocation.
func (l *Logger) LogDeallocate(addr Addr, size int, moved int, rebased int) {
	l.Debug("deallocate completed",
		"addr", addr.String(),
		"size", size,
		"bytes_moved", moved,
		"records_rebased", rebased,
	)
}

// LogViolation logs a contract violation just before it panics.
func (l *Logger) LogViolation(v *ContractViolation) {
	l.Error("contract violation",
		"op", v.Op,
		"addr", v.Addr.String(),
		"error", v.err,
	)
}

// LogFragmentation warns when fragmentation crosses threshold.
// Warnings are throttled to one per interval.
func (l *Logger) LogFragmentation(percent, threshold float64) {
	if threshold <= 0 || percent < threshold {
		return
	}
	l.fragWarn.Do(func() {
		l.Warn("high fragmentation",
			"percent", percent,
			"threshold", threshold,
		)
	})
}

// LogShutdown logs allocator shutdown.
func (l *Logger) LogShutdown(arenas int, reserved int64, err error) {
	if err != nil {
		l.Error("shutdown failed",
			"arenas", arenas,
			"reserved", reserved,
			"error", err,
		)
	} else {
		l.Info("allocator shut down",
			"arenas", arenas,
			"reserved", reserved,
		)
	}
}
