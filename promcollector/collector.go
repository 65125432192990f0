// Package promcollector exports allocator metrics to Prometheus.
package promcollector

import (
	"time"

	"github.com/hupe1980/compacta"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements compacta.MetricsCollector on Prometheus metrics.
type Collector struct {
	opLatency     *prometheus.HistogramVec
	bytes         *prometheus.CounterVec
	bytesMoved    prometheus.Counter
	arenas        prometheus.Counter
	reserved      prometheus.Gauge
	fragmentation prometheus.Gauge
	allocSize     prometheus.Histogram
}

var _ compacta.MetricsCollector = (*Collector)(nil)

// New creates a Collector whose metric names start with namespace
// ("compacta" if empty) and registers it with reg (the default registerer if
// nil).
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if namespace == "" {
		namespace = "compacta"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of allocator operations",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}, []string{"op", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes allocated and deallocated",
		}, []string{"op"}),
		bytesMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_bytes_moved_total",
			Help:      "Bytes shifted by compaction",
		}),
		arenas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arenas_created_total",
			Help:      "Arenas reserved",
		}),
		reserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reserved_bytes",
			Help:      "Bytes reserved by arenas",
		}),
		fragmentation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fragmentation_percent",
			Help:      "Fragmentation observed after the last deallocation",
		}),
		allocSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_size_bytes",
			Help:      "Size of successful allocations",
			Buckets:   prometheus.ExponentialBuckets(8, 4, 12),
		}),
	}

	for _, m := range []prometheus.Collector{
		c.opLatency, c.bytes, c.bytesMoved, c.arenas, c.reserved, c.fragmentation, c.allocSize,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer, namespace string) *Collector {
	c, err := New(reg, namespace)
	if err != nil {
		panic(err)
	}
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordAllocate implements compacta.MetricsCollector.
func (c *Collector) RecordAllocate(size int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("allocate", status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	c.bytes.WithLabelValues("allocate").Add(float64(size))
	c.allocSize.Observe(float64(size))
}

// RecordDeallocate implements compacta.MetricsCollector.
func (c *Collector) RecordDeallocate(size int, moved int, d time.Duration) {
	c.opLatency.WithLabelValues("deallocate", "success").Observe(d.Seconds())
	c.bytes.WithLabelValues("deallocate").Add(float64(size))
	c.bytesMoved.Add(float64(moved))
}

// RecordArenaCreated implements compacta.MetricsCollector.
func (c *Collector) RecordArenaCreated(capacity int) {
	c.arenas.Inc()
	c.reserved.Add(float64(capacity))
}

// RecordArenaReleased implements compacta.MetricsCollector.
func (c *Collector) RecordArenaReleased(capacity int) {
	c.reserved.Sub(float64(capacity))
}

// RecordFragmentation implements compacta.MetricsCollector.
func (c *Collector) RecordFragmentation(percent float64) {
	c.fragmentation.Set(percent)
}
