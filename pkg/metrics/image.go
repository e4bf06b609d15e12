package metrics

import "github.com/marmos91/memspace/pkg/vnode"

// NewImageMetrics creates a Prometheus-backed vnode.ImageMetrics for the
// given store type ("memory", "badger").
//
// Returns nil if metrics are not enabled.
func NewImageMetrics(storeType string) vnode.ImageMetrics {
	if !IsEnabled() || newPrometheusImageMetrics == nil {
		return nil
	}
	return newPrometheusImageMetrics(storeType)
}

var newPrometheusImageMetrics func(storeType string) vnode.ImageMetrics

// RegisterImageMetricsConstructor registers the Prometheus image metrics
// constructor.
func RegisterImageMetricsConstructor(constructor func(storeType string) vnode.ImageMetrics) {
	newPrometheusImageMetrics = constructor
}
