package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/memspace/pkg/metrics"
	"github.com/marmos91/memspace/pkg/vnode"
)

func init() {
	metrics.RegisterImageMetricsConstructor(NewImageMetrics)
}

type imageCollectors struct {
	pageReads  *prometheus.CounterVec
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

var (
	imageMu   sync.Mutex
	imageReg  *prometheus.Registry
	imageColl *imageCollectors
)

// imageMetrics is the Prometheus implementation of vnode.ImageMetrics.
type imageMetrics struct {
	c         *imageCollectors
	storeType string
}

// NewImageMetrics creates a Prometheus-backed vnode.ImageMetrics labelled
// with storeType.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewImageMetrics(storeType string) vnode.ImageMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	imageMu.Lock()
	defer imageMu.Unlock()
	if imageReg != reg {
		imageColl = newImageCollectors(reg)
		imageReg = reg
	}
	return &imageMetrics{c: imageColl, storeType: storeType}
}

func newImageCollectors(reg *prometheus.Registry) *imageCollectors {
	return &imageCollectors{
		pageReads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memspace_image_page_reads_total",
			Help: "Image page lookups by store type and whether the page existed",
		}, []string{"store_type", "result"}), // result: "present", "absent"
		operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memspace_image_operations_total",
			Help: "Image reads and writes by store type, operation and status",
		}, []string{"store_type", "operation", "status"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memspace_image_operation_duration_milliseconds",
			Help:    "Duration of image operations in milliseconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		}, []string{"store_type", "operation"}),
		bytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "memspace_image_bytes_total",
			Help: "Bytes moved by image operations",
		}, []string{"store_type", "operation"}),
	}
}

func (m *imageMetrics) RecordPageRead(present bool) {
	if m == nil {
		return
	}
	result := "absent"
	if present {
		result = "present"
	}
	m.c.pageReads.WithLabelValues(m.storeType, result).Inc()
}

func (m *imageMetrics) ObserveImageOp(op string, bytes int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.c.operations.WithLabelValues(m.storeType, op, status).Inc()
	m.c.duration.WithLabelValues(m.storeType, op).Observe(float64(duration.Microseconds()) / 1000)
	if err == nil {
		m.c.bytes.WithLabelValues(m.storeType, op).Add(float64(bytes))
	}
}
