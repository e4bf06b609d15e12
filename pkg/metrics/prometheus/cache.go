package prometheus

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/memspace/pkg/memspace"
	"github.com/marmos91/memspace/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
}

// cacheCollectors are registered once per registry and shared by every
// cache in the process.
type cacheCollectors struct {
	chunkReads    prometheus.Counter
	chunkBytes    prometheus.Histogram
	chunkDuration prometheus.Histogram
	chunksSkipped prometheus.Counter
	reads         *prometheus.CounterVec
	writes        *prometheus.CounterVec
	writeDuration prometheus.Histogram
	loads         prometheus.Counter
	loadDuration  prometheus.Histogram
	loadedBytes   prometheus.Counter
	faults        *prometheus.CounterVec
}

var (
	cacheMu   sync.Mutex
	cacheReg  *prometheus.Registry
	cacheColl *cacheCollectors
)

// cacheMetrics is the Prometheus implementation of memspace.CacheMetrics.
type cacheMetrics struct {
	c *cacheCollectors
}

// NewCacheMetrics creates a Prometheus-backed memspace.CacheMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() memspace.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cacheReg != reg {
		cacheColl = newCacheCollectors(reg)
		cacheReg = reg
	}
	return &cacheMetrics{c: cacheColl}
}

func newCacheCollectors(reg *prometheus.Registry) *cacheCollectors {
	return &cacheCollectors{
		chunkReads: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "memspace_cache_chunk_reads_total",
			Help: "Chunk replies copied into cache slots",
		}),
		chunkBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "memspace_cache_chunk_bytes",
			Help:    "Bytes carried by chunk replies",
			Buckets: []float64{1, 8, 16, 32, 48, 64},
		}),
		chunkDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "memspace_cache_chunk_duration_milliseconds",
			Help: "Round trip of chunk reads in milliseconds",
			Buckets: []float64{
				0.1, // in-process node
				1,
				5,
				10,
				50,
				100,
				500, // slow bus
				1000,
			},
		}),
		chunksSkipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "memspace_cache_chunks_skipped_total",
			Help: "Chunk reads answered with zero bytes and skipped",
		}),
		reads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memspace_cache_reads_total",
			Help: "Cache reads by result",
		}, []string{"result"}), // "hit", "miss"
		writes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memspace_cache_writes_total",
			Help: "Remote writes by reply code",
		}, []string{"code"}),
		writeDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "memspace_cache_write_duration_milliseconds",
			Help:    "Round trip of remote writes in milliseconds",
			Buckets: []float64{0.1, 1, 5, 10, 50, 100, 500, 1000},
		}),
		loads: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "memspace_cache_loads_completed_total",
			Help: "Prefetches that reached the end of the declared ranges",
		}),
		loadDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "memspace_cache_load_duration_seconds",
			Help:    "Time from FillCache to completion",
			Buckets: prometheus.DefBuckets,
		}),
		loadedBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "memspace_cache_loaded_bytes_total",
			Help: "Bytes loaded by completed prefetches",
		}),
		faults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memspace_cache_load_faults_total",
			Help: "Prefetches stopped by an error, by kind",
		}, []string{"kind"}), // "spurious", "overflow", "read"
	}
}

func (m *cacheMetrics) ObserveChunkRead(bytes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.c.chunkReads.Inc()
	m.c.chunkBytes.Observe(float64(bytes))
	m.c.chunkDuration.Observe(float64(duration.Microseconds()) / 1000)
}

func (m *cacheMetrics) RecordChunkSkipped() {
	if m == nil {
		return
	}
	m.c.chunksSkipped.Inc()
}

func (m *cacheMetrics) RecordRead(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.c.reads.WithLabelValues(result).Inc()
}

func (m *cacheMetrics) ObserveWrite(_ int, code uint16, duration time.Duration) {
	if m == nil {
		return
	}
	m.c.writes.WithLabelValues(fmt.Sprintf("0x%04x", code)).Inc()
	m.c.writeDuration.Observe(float64(duration.Microseconds()) / 1000)
}

func (m *cacheMetrics) RecordLoadComplete(_ int, bytes uint64, duration time.Duration) {
	if m == nil {
		return
	}
	m.c.loads.Inc()
	m.c.loadDuration.Observe(duration.Seconds())
	m.c.loadedBytes.Add(float64(bytes))
}

func (m *cacheMetrics) RecordFault(kind string) {
	if m == nil {
		return
	}
	m.c.faults.WithLabelValues(kind).Inc()
}
