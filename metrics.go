package compacta

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting allocator metrics.
// Implement this interface to integrate with monitoring systems; the
// promcollector package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordAllocate is called after each allocation attempt.
	// err is nil if successful.
	RecordAllocate(size int, duration time.Duration, err error)

	// RecordDeallocate is called after each successful deallocation.
	// moved is the number of bytes shifted by compaction.
	RecordDeallocate(size int, moved int, duration time.Duration)

	// RecordArenaCreated is called whenever a new arena is reserved.
	RecordArenaCreated(capacity int)

	// RecordArenaReleased is called for every arena returned on Close.
	RecordArenaReleased(capacity int)

	// RecordFragmentation is called with the fragmentation percentage
	// observed after a deallocation.
	RecordFragmentation(percent float64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocate(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDeallocate(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordArenaCreated(int)                   {}
func (NoopMetricsCollector) RecordArenaReleased(int)                  {}
func (NoopMetricsCollector) RecordFragmentation(float64)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocateCount      atomic.Int64
	AllocateErrors     atomic.Int64
	AllocateBytes      atomic.Int64
	AllocateTotalNanos atomic.Int64
	DeallocateCount    atomic.Int64
	DeallocateBytes    atomic.Int64
	BytesMoved         atomic.Int64
	DeallocTotalNanos  atomic.Int64
	ArenasCreated      atomic.Int64
	ArenasReleased     atomic.Int64
	BytesReserved      atomic.Int64
	fragmentation      atomic.Uint64 // percent * 1e6
}

// RecordAllocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocate(size int, duration time.Duration, err error) {
	b.AllocateCount.Add(1)
	b.AllocateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AllocateErrors.Add(1)
		return
	}
	b.AllocateBytes.Add(int64(size))
}

// RecordDeallocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDeallocate(size int, moved int, duration time.Duration) {
	b.DeallocateCount.Add(1)
	b.DeallocateBytes.Add(int64(size))
	b.BytesMoved.Add(int64(moved))
	b.DeallocTotalNanos.Add(duration.Nanoseconds())
}

// RecordArenaCreated implements MetricsCollector.
func (b *BasicMetricsCollector) RecordArenaCreated(capacity int) {
	b.ArenasCreated.Add(1)
	b.BytesReserved.Add(int64(capacity))
}

// RecordArenaReleased implements MetricsCollector.
func (b *BasicMetricsCollector) RecordArenaReleased(capacity int) {
	b.ArenasReleased.Add(1)
	b.BytesReserved.Add(-int64(capacity))
}

// RecordFragmentation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFragmentation(percent float64) {
	b.fragmentation.Store(uint64(percent * 1e6))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocateCount:        b.AllocateCount.Load(),
		AllocateErrors:       b.AllocateErrors.Load(),
		AllocateBytes:        b.AllocateBytes.Load(),
		AllocateAvgNanos:     avg(b.AllocateTotalNanos.Load(), b.AllocateCount.Load()),
		DeallocateCount:      b.DeallocateCount.Load(),
		DeallocateBytes:      b.DeallocateBytes.Load(),
		DeallocateAvgNanos:   avg(b.DeallocTotalNanos.Load(), b.DeallocateCount.Load()),
		BytesMoved:           b.BytesMoved.Load(),
		ArenasCreated:        b.ArenasCreated.Load(),
		ArenasReleased:       b.ArenasReleased.Load(),
		BytesReserved:        b.BytesReserved.Load(),
		FragmentationPercent: float64(b.fragmentation.Load()) / 1e6,
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector.
type BasicMetricsStats struct {
	AllocateCount        int64
	AllocateErrors       int64
	AllocateBytes        int64
	AllocateAvgNanos     int64
	DeallocateCount      int64
	DeallocateBytes      int64
	DeallocateAvgNanos   int64
	BytesMoved           int64
	ArenasCreated        int64
	ArenasReleased       int64
	BytesReserved        int64
	FragmentationPercent float64 // last observed
}
