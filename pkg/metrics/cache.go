package metrics

import "github.com/marmos91/memspace/pkg/memspace"

// NewCacheMetrics creates a Prometheus-backed memspace.CacheMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or no
// implementation has been registered. A nil result can be passed straight to
// memspace.Options.
//
// Example usage:
//
//	metrics.InitRegistry()
//	c := memspace.New(svc, node, space, memspace.Options{
//		Metrics: metrics.NewCacheMetrics(),
//	})
func NewCacheMetrics() memspace.CacheMetrics {
	if !IsEnabled() || newPrometheusCacheMetrics == nil {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// newPrometheusCacheMetrics is set by pkg/metrics/prometheus during package
// initialization. The indirection avoids an import cycle.
var newPrometheusCacheMetrics func() memspace.CacheMetrics

// RegisterCacheMetricsConstructor registers the Prometheus cache metrics
// constructor.
func RegisterCacheMetricsConstructor(constructor func() memspace.CacheMetrics) {
	newPrometheusCacheMetrics = constructor
}
