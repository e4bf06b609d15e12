package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/marmos91/memspace/internal/logger"
	"github.com/marmos91/memspace/internal/telemetry"
	"github.com/marmos91/memspace/pkg/config"
	"github.com/marmos91/memspace/pkg/memspace"
	"github.com/marmos91/memspace/pkg/metrics"
	"github.com/marmos91/memspace/pkg/vnode"

	// Registers the Prometheus implementations behind pkg/metrics.
	_ "github.com/marmos91/memspace/pkg/metrics/prometheus"
)

// session is everything a command needs to talk to the configured node:
// ambient services, the virtual node and a cache in front of it.
type session struct {
	cfg   *config.Config
	node  *vnode.Node
	image vnode.Image
	cache *memspace.Cache

	closers []func(context.Context) error
}

// loadConfig reads the configuration and applies the global flag overrides.
// An explicit --config must exist; otherwise defaults are used when no file
// is found.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.MustLoad(cfgFile)
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if spaceFlag != "" {
		cfg.Node.Space = spaceFlag
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// openSession loads the configuration and starts tracing, profiling, the
// metrics endpoint (when enabled), the virtual node and the cache. Close
// releases them in reverse order.
func openSession(ctx context.Context) (s *session, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	s = &session{cfg: cfg}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	traceShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "memspace",
		ServiceVersion: Version,
		Node:           cfg.Node.ID,
		Space:          cfg.Node.Space,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.closers = append(s.closers, traceShutdown)

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "memspace",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return profilingShutdown() })

	if cfg.Metrics.Enabled {
		if err := s.startMetrics(ctx); err != nil {
			return nil, err
		}
	}

	node, image, err := config.NewNode(cfg.Node)
	if err != nil {
		return nil, err
	}
	s.node, s.image = node, image
	s.closers = append(s.closers,
		func(context.Context) error { return image.Close() },
		func(context.Context) error { return node.Close() },
	)

	space, err := cfg.Node.MemorySpace()
	if err != nil {
		return nil, err
	}
	s.cache = memspace.New(node, node.ID(), space, cfg.Cache.CacheOptions())

	logger.Debug("Session ready",
		logger.Node(node.ID()), logger.Space(uint8(space)),
		logger.StoreType(cfg.Node.Image), "size", cfg.Node.Size.String())
	return s, nil
}

func (s *session) startMetrics(ctx context.Context) error {
	reg := metrics.InitRegistry()
	srv, err := metrics.NewServer(metrics.ServerConfig{Port: s.cfg.Metrics.Port}, reg)
	if err != nil {
		return err
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(srvCtx); err != nil {
			logger.Error("Metrics server stopped", logger.Err(err))
		}
	}()

	s.closers = append(s.closers, func(context.Context) error {
		cancel()
		<-done
		metrics.Reset()
		return nil
	})
	return nil
}

// Close releases everything openSession started, newest first.
func (s *session) Close() {
	ctx := context.Background()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("Shutdown error", logger.Err(err))
	}
	s.closers = nil
}

// stdoutIsTerminal reports whether colored output makes sense.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
