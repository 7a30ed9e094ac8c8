package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/najoast/nplmini/config"
	"github.com/najoast/nplmini/core"
	"github.com/najoast/nplmini/metrics"
)

// ErrAlreadyRunning is returned by Run on a running application
var ErrAlreadyRunning = errors.New("application is already running")

// Option configures an Application
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registry   *prometheus.Registry
	configFile string
	loader     *config.Loader
	managerOpt []core.ManagerOption
}

// WithLogger sets the application logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry sets the Prometheus registry the runtime metrics go to
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithConfigFile enables hot reload of the runtime section from file,
// using loader to parse it. A nil loader uses config.NewLoader().
func WithConfigFile(file string, loader *config.Loader) Option {
	return func(o *options) {
		o.configFile = file
		o.loader = loader
	}
}

// WithManagerOptions passes extra options to the runtime manager
func WithManagerOptions(opts ...core.ManagerOption) Option {
	return func(o *options) { o.managerOpt = append(o.managerOpt, opts...) }
}

// Application owns the runtime manager and the services around it
type Application struct {
	id        string
	cfg       *config.Config
	log       *slog.Logger
	registry  *prometheus.Registry
	manager   *core.Manager
	runtime   *RuntimeService
	lifecycle *LifecycleManager

	mutex   sync.Mutex
	running bool
}

// NewApplication builds an application from cfg. Services are registered
// but not started.
func NewApplication(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = metrics.NewRegistry()
	}

	managerOpts := []core.ManagerOption{
		core.WithLogger(o.logger),
		core.WithMaxDrainPasses(cfg.Runtime.MaxDrainPasses),
	}
	if cfg.Metrics.Enabled {
		managerOpts = append(managerOpts,
			core.WithMetrics(metrics.NewRuntimeMetrics(o.registry, cfg.Metrics.Namespace)))
	}
	managerOpts = append(managerOpts, o.managerOpt...)

	app := &Application{
		id:        uuid.NewString(),
		cfg:       cfg,
		log:       o.logger,
		registry:  o.registry,
		manager:   core.NewManager(managerOpts...),
		lifecycle: NewLifecycleManager(o.logger),
	}
	app.lifecycle.SetTimeout(app.shutdownTimeout())

	app.runtime = NewRuntimeService(app.manager, cfg.Runtime, o.logger)
	if err := app.lifecycle.Register(app.runtime.Name(), app.runtime); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		handler := NewMonitorHandler(cfg.Metrics.Path, app.id, o.registry, app.runtime, o.logger)
		srv := NewMetricsServerService(cfg.Metrics, handler, o.logger)
		if err := app.lifecycle.Register(srv.Name(), srv, app.runtime.Name()); err != nil {
			return nil, err
		}
	}

	if o.configFile != "" {
		loader := o.loader
		if loader == nil {
			loader = config.NewLoader()
		}
		watcher, err := config.NewWatcher(o.configFile, loader, config.WithWatcherLogger(o.logger))
		if err != nil {
			return nil, &ApplicationError{Operation: "configure", Service: "config-watcher", Err: err}
		}
		svc := NewConfigWatcherService(watcher, app.runtime, o.logger)
		if err := app.lifecycle.Register(svc.Name(), svc, app.runtime.Name()); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// ID returns the instance identifier reported by the monitor endpoints
func (app *Application) ID() string {
	return app.id
}

// Manager returns the runtime manager
func (app *Application) Manager() *core.Manager {
	return app.manager
}

// Runtime returns the runtime driver service
func (app *Application) Runtime() *RuntimeService {
	return app.runtime
}

// Lifecycle returns the lifecycle manager
func (app *Application) Lifecycle() *LifecycleManager {
	return app.lifecycle
}

// Registry returns the Prometheus registry
func (app *Application) Registry() *prometheus.Registry {
	return app.registry
}

// Config returns the configuration the application was built with
func (app *Application) Config() *config.Config {
	return app.cfg
}

func (app *Application) shutdownTimeout() time.Duration {
	if d := app.cfg.App.Shutdown.Std(); d > 0 {
		return d
	}
	return defaultOperationTimeout
}

// Start starts every service in dependency order
func (app *Application) Start(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if app.running {
		return ErrAlreadyRunning
	}
	if err := app.lifecycle.Start(ctx); err != nil {
		return err
	}
	app.running = true

	app.log.Info("application started",
		slog.String("name", app.cfg.App.Name),
		slog.String("version", app.cfg.App.Version),
		slog.String("instance", app.id),
		slog.Any("services", app.lifecycle.StartOrder()))
	return nil
}

// Run starts the application and blocks until ctx is done or the process
// receives SIGINT or SIGTERM, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	<-ctx.Done()
	app.log.Info("shutting down", slog.Any("cause", context.Cause(ctx)))

	return app.Shutdown(context.Background())
}

// Shutdown stops the services in reverse order and closes the manager
func (app *Application) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if !app.running {
		return nil
	}
	app.running = false

	shutdownCtx, cancel := context.WithTimeout(ctx, app.shutdownTimeout())
	defer cancel()

	err := app.lifecycle.Stop(shutdownCtx)
	app.manager.Close()
	if err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}

	app.log.Info("application stopped", slog.String("name", app.cfg.App.Name))
	return nil
}
