// Package metrics wires cache and image observations to Prometheus.
//
// Collection is opt-in: until InitRegistry is called every constructor in
// this package returns nil, and components given nil metrics skip all
// recording.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	regMu    sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide registry with Go runtime and process
// collectors attached. Calling it again replaces the registry.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	regMu.Lock()
	registry = reg
	regMu.Unlock()
	return reg
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	regMu.RLock()
	defer regMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	regMu.RLock()
	defer regMu.RUnlock()
	return registry
}

// Reset disables metrics again. Used by tests.
func Reset() {
	regMu.Lock()
	registry = nil
	regMu.Unlock()
}
