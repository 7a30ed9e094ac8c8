package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/najoast/nplmini/config"
)

// MetricsServerService serves the monitor handler over HTTP
type MetricsServerService struct {
	cfg     config.MetricsConfig
	handler http.Handler
	log     *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	serveErr error
	done     chan struct{}
}

// NewMetricsServerService creates the metrics endpoint service. handler is
// usually built by NewMonitorHandler.
func NewMetricsServerService(cfg config.MetricsConfig, handler http.Handler, logger *slog.Logger) *MetricsServerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsServerService{
		cfg:     cfg,
		handler: handler,
		log:     logger.With(slog.String("service", "metrics-server")),
	}
}

func (s *MetricsServerService) Name() string {
	return "metrics-server"
}

func (s *MetricsServerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("metrics server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.listener = ln
	s.serveErr = nil
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server error", slog.Any("error", err))
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}(s.server, s.done)

	s.log.Info("metrics server listening",
		slog.String("address", ln.Addr().String()),
		slog.String("path", s.cfg.Path))
	return nil
}

func (s *MetricsServerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	<-done
	return err
}

func (s *MetricsServerService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.serveErr != nil:
		return HealthStatus{State: HealthUnhealthy, Message: s.serveErr.Error()}, nil
	case s.server == nil:
		return HealthStatus{State: HealthStopped, Message: "metrics server not running"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "serving metrics",
		Data:    map[string]interface{}{"address": s.listener.Addr().String()},
	}, nil
}

// Addr returns the listening address, or nil when stopped
func (s *MetricsServerService) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConfigWatcherService reloads the configuration file on change and pushes
// the runtime section into the running runtime service.
type ConfigWatcherService struct {
	watcher *config.Watcher
	runtime *RuntimeService
	log     *slog.Logger

	mu      sync.Mutex
	reloads int
	lastErr error
}

// NewConfigWatcherService creates the hot-reload service
func NewConfigWatcherService(watcher *config.Watcher, runtime *RuntimeService, logger *slog.Logger) *ConfigWatcherService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConfigWatcherService{
		watcher: watcher,
		runtime: runtime,
		log:     logger.With(slog.String("service", "config-watcher")),
	}
	watcher.OnConfigChange(s.apply)
	return s
}

func (s *ConfigWatcherService) Name() string {
	return "config-watcher"
}

func (s *ConfigWatcherService) Start(ctx context.Context) error {
	return s.watcher.Start()
}

func (s *ConfigWatcherService) Stop(ctx context.Context) error {
	return s.watcher.Stop()
}

func (s *ConfigWatcherService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := HealthStatus{
		State:   HealthHealthy,
		Message: "watching configuration",
		Data:    map[string]interface{}{"reloads": s.reloads},
	}
	if s.lastErr != nil {
		status.State = HealthUnhealthy
		status.Message = s.lastErr.Error()
	}
	return status, nil
}

func (s *ConfigWatcherService) apply(_, newConfig *config.Config) {
	err := s.runtime.UpdateConfig(newConfig.Runtime)

	s.mu.Lock()
	s.reloads++
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.log.Error("runtime settings not applied", slog.Any("error", err))
		return
	}
	s.log.Info("runtime settings applied",
		slog.Int("default_channel", newConfig.Runtime.DefaultChannel),
		slog.Int("channel_overrides", len(newConfig.Runtime.Channels)))
}
