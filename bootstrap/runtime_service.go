package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/najoast/nplmini/config"
	"github.com/najoast/nplmini/core"
)

// RuntimeService drives a core.Manager: it calls Run on every tick and,
// when enabled, as soon as a message is queued.
type RuntimeService struct {
	manager *core.Manager
	log     *slog.Logger

	mu  sync.Mutex
	cfg config.RuntimeConfig

	cancel context.CancelFunc
	group  *errgroup.Group

	ticks     atomic.Uint64
	processed atomic.Uint64
	lastTick  atomic.Int64 // unix nanos
}

// NewRuntimeService creates the driver for manager
func NewRuntimeService(manager *core.Manager, cfg config.RuntimeConfig, logger *slog.Logger) *RuntimeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeService{
		manager: manager,
		cfg:     cfg,
		log:     logger.With(slog.String("service", "runtime")),
	}
}

func (s *RuntimeService) Name() string {
	return "runtime"
}

// Start applies the runtime settings, creates the configured states and
// launches the driver loop.
func (s *RuntimeService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("runtime service already started")
	}

	s.manager.Init()
	if err := s.cfg.Apply(s.manager.Settings()); err != nil {
		return err
	}
	for _, name := range s.cfg.States {
		s.manager.CreateGetState(name, core.StateKindNPL)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(loopCtx)

	wake := make(chan struct{}, 1)
	if s.cfg.WakeOnActivate {
		g.Go(func() error { return s.waitLoop(gctx, wake) })
	}
	interval := s.cfg.TickInterval.Std()
	g.Go(func() error { return s.runLoop(gctx, interval, wake) })

	s.cancel = cancel
	s.group = g

	s.log.Info("runtime started",
		slog.Duration("tick_interval", s.cfg.TickInterval.Std()),
		slog.Bool("drain_to_end", s.cfg.DrainToEnd),
		slog.Bool("wake_on_activate", s.cfg.WakeOnActivate),
		slog.Int("states", len(s.manager.States())))
	return nil
}

// Stop stops the driver loop and runs one last draining pass so queued
// work is not lost.
func (s *RuntimeService) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	n := s.manager.Run(true)
	s.log.Info("runtime stopped",
		slog.Uint64("ticks", s.ticks.Load()),
		slog.Int("drained", n))
	return nil
}

func (s *RuntimeService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	running := s.cancel != nil
	s.mu.Unlock()

	if !running {
		return HealthStatus{State: HealthStopped, Message: "runtime not running"}, nil
	}

	queued := 0
	stats := s.manager.Stats()
	for _, st := range stats {
		queued += st.Queued
	}

	status := HealthStatus{
		State:   HealthHealthy,
		Message: "runtime running",
		Data: map[string]interface{}{
			"states":    len(stats),
			"queued":    queued,
			"ticks":     s.ticks.Load(),
			"processed": s.processed.Load(),
		},
	}
	if last := s.lastTick.Load(); last > 0 {
		status.Data["last_tick"] = time.Unix(0, last)
	}
	return status, nil
}

// UpdateConfig replaces the runtime settings of a running service. The
// loop timing is kept; channel table, default channel, compression,
// keep-alive and DNS take effect at once and new states are created.
func (s *RuntimeService) UpdateConfig(cfg config.RuntimeConfig) error {
	settings := s.manager.Settings()
	if settings == nil {
		return core.ErrNotInitialized
	}
	if err := cfg.Apply(settings); err != nil {
		return err
	}
	for _, name := range cfg.States {
		s.manager.CreateGetState(name, core.StateKindNPL)
	}

	s.mu.Lock()
	cfg.TickInterval = s.cfg.TickInterval
	cfg.WakeOnActivate = s.cfg.WakeOnActivate
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Ticks returns the number of Run calls made by the loop
func (s *RuntimeService) Ticks() uint64 {
	return s.ticks.Load()
}

func (s *RuntimeService) drainToEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.DrainToEnd
}

func (s *RuntimeService) tick() {
	n := s.manager.Run(s.drainToEnd())
	s.ticks.Add(1)
	s.processed.Add(uint64(n))
	s.lastTick.Store(time.Now().UnixNano())
}

func (s *RuntimeService) runLoop(ctx context.Context, interval time.Duration, wake <-chan struct{}) error {
	var tickC <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickC:
		case <-wake:
		}
		s.tick()
	}
}

// waitLoop turns manager wake-ups into loop iterations
func (s *RuntimeService) waitLoop(ctx context.Context, wake chan<- struct{}) error {
	for {
		if err := s.manager.Wait(ctx); err != nil {
			return err
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
