package config

import (
	"strings"

	"github.com/marmos91/memspace/internal/bytesize"
	"github.com/marmos91/memspace/pkg/mcs"
)

// Defaults for the node and cache sections.
const (
	DefaultNodeID      = "05.01.01.01.22.00"
	DefaultSpace       = "0xFD"
	DefaultImage       = "memory"
	DefaultImageSize   = 4 * bytesize.KiB
	DefaultMaxSlot     = 16 * bytesize.MiB
	DefaultMetricsPort = 9090
)

// ApplyDefaults fills every zero-valued field with its default. Explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyNodeDefaults(&cfg.Node)
	applyCacheDefaults(&cfg.Cache)
}

// applyLoggingDefaults sets logging defaults and uppercases the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets tracing defaults. Tracing stays opt-in.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "inuse_space", "goroutines"}
	}
}

// applyMetricsDefaults sets the metrics port.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyNodeDefaults sets the virtual node defaults.
func applyNodeDefaults(cfg *NodeConfig) {
	if cfg.ID == "" {
		cfg.ID = DefaultNodeID
	}
	if cfg.Space == "" {
		cfg.Space = DefaultSpace
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	cfg.Image = strings.ToLower(cfg.Image)
	if cfg.Size == 0 {
		cfg.Size = DefaultImageSize
	}
	if cfg.MaxReply == 0 {
		cfg.MaxReply = mcs.MaxDatagramPayload
	}
}

// applyCacheDefaults sets the cache chunk size and slot cap.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxChunk == 0 {
		cfg.MaxChunk = mcs.MaxDatagramPayload
	}
	if cfg.MaxSlot == 0 {
		cfg.MaxSlot = DefaultMaxSlot
	}
}

// GetDefaultConfig returns a fully defaulted configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
