package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Lifecycle errors
var (
	ErrAlreadyStarted      = errors.New("lifecycle manager already started")
	ErrDuplicateService    = errors.New("service already registered")
	ErrUnknownDependency   = errors.New("dependency not registered")
	ErrCircularDependency  = errors.New("circular dependency detected")
	ErrInvalidRegistration = errors.New("invalid service registration")
)

const (
	defaultOperationTimeout = 30 * time.Second
	defaultHealthTimeout    = 5 * time.Second
)

// LifecycleManager starts services in dependency order and stops them in
// reverse.
type LifecycleManager struct {
	log *slog.Logger

	mutex sync.RWMutex

	services     map[string]Service
	dependencies map[string][]string

	// registered keeps registration order so start order is deterministic
	registered []string
	startOrder []string
	started    bool
	stopping   bool

	eventChan chan LifecycleEvent
	listeners []func(LifecycleEvent)

	timeout time.Duration
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(logger *slog.Logger) *LifecycleManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleManager{
		log:          logger,
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		eventChan:    make(chan LifecycleEvent, 100),
		timeout:      defaultOperationTimeout,
	}
}

// Register registers a service that starts after deps
func (lm *LifecycleManager) Register(name string, service Service, deps ...string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRegistration)
	}
	if service == nil {
		return fmt.Errorf("%w: nil service %s", ErrInvalidRegistration, name)
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("cannot register service %s: %w", name, ErrAlreadyStarted)
	}
	if _, exists := lm.services[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}

	lm.services[name] = service
	lm.dependencies[name] = deps
	lm.registered = append(lm.registered, name)

	lm.broadcastEvent(LifecycleEvent{
		Type:      EventServiceRegistered,
		Service:   name,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"dependencies": deps},
	})
	return nil
}

// Start starts all services in dependency order. If a service fails, the
// services already started are stopped again.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return ErrAlreadyStarted
	}

	order, err := lm.calculateStartOrder()
	if err != nil {
		return &ApplicationError{Operation: "start", Err: err}
	}

	lm.broadcastEvent(LifecycleEvent{
		Type:      EventLifecycleStarting,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"order": order},
	})

	for _, name := range order {
		service := lm.services[name]

		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStarting, Service: name, Timestamp: time.Now()})

		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.broadcastEvent(LifecycleEvent{
				Type:      EventServiceStartFailed,
				Service:   name,
				Timestamp: time.Now(),
				Error:     err,
			})
			lm.stopStarted(ctx)
			return &ApplicationError{Operation: "start", Service: name, Err: err}
		}

		lm.startOrder = append(lm.startOrder, name)
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStarted, Service: name, Timestamp: time.Now()})
	}

	lm.started = true
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStarted, Timestamp: time.Now()})
	return nil
}

// Stop stops all started services in reverse start order. It returns the
// first stop error; every service is still asked to stop.
func (lm *LifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	if lm.stopping {
		return fmt.Errorf("lifecycle manager already stopping")
	}

	lm.stopping = true
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStopping, Timestamp: time.Now()})

	err := lm.stopStarted(ctx)

	lm.started = false
	lm.stopping = false
	lm.broadcastEvent(LifecycleEvent{Type: EventLifecycleStopped, Timestamp: time.Now()})
	return err
}

// stopStarted stops services in startOrder, last first. Caller holds mutex.
func (lm *LifecycleManager) stopStarted(ctx context.Context) error {
	var firstErr error

	for i := len(lm.startOrder) - 1; i >= 0; i-- {
		name := lm.startOrder[i]
		service := lm.services[name]

		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopping, Service: name, Timestamp: time.Now()})

		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Stop(stopCtx)
		cancel()

		if err != nil {
			if firstErr == nil {
				firstErr = &ApplicationError{Operation: "stop", Service: name, Err: err}
			}
			lm.broadcastEvent(LifecycleEvent{
				Type:      EventServiceStopFailed,
				Service:   name,
				Timestamp: time.Now(),
				Error:     err,
			})
			continue
		}
		lm.broadcastEvent(LifecycleEvent{Type: EventServiceStopped, Service: name, Timestamp: time.Now()})
	}

	lm.startOrder = nil
	return firstErr
}

// Health probes every service concurrently. A probe that fails reports
// the service as unhealthy.
func (lm *LifecycleManager) Health(ctx context.Context) (map[string]HealthStatus, error) {
	lm.mutex.RLock()
	services := make(map[string]Service, len(lm.services))
	for name, service := range lm.services {
		services[name] = service
	}
	lm.mutex.RUnlock()

	var (
		mu     sync.Mutex
		health = make(map[string]HealthStatus, len(services))
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, service := range services {
		g.Go(func() error {
			healthCtx, cancel := context.WithTimeout(gctx, defaultHealthTimeout)
			defer cancel()

			status, err := service.Health(healthCtx)
			if err != nil {
				status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
			}
			if status.LastCheck.IsZero() {
				status.LastCheck = time.Now()
			}

			mu.Lock()
			health[name] = status
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return health, nil
}

// Services returns all registered service names
func (lm *LifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartOrder returns the services in the order they were started
func (lm *LifecycleManager) StartOrder() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	order := make([]string, len(lm.startOrder))
	copy(order, lm.startOrder)
	return order
}

// Events returns a channel for lifecycle events. Events are dropped when
// nobody drains it.
func (lm *LifecycleManager) Events() <-chan LifecycleEvent {
	return lm.eventChan
}

// AddListener adds a lifecycle event listener. Listeners run on their own
// goroutine.
func (lm *LifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.listeners = append(lm.listeners, listener)
}

// SetTimeout sets the timeout for service operations
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *LifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	return lm.started
}

// GetService returns a registered service by name
func (lm *LifecycleManager) GetService(name string) (Service, bool) {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	service, exists := lm.services[name]
	return service, exists
}

// calculateStartOrder is Kahn's topological sort, seeded in registration
// order.
func (lm *LifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for _, name := range lm.registered {
		for _, dep := range lm.dependencies[name] {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("%w: %s (required by %s)", ErrUnknownDependency, dep, name)
			}
			graph[dep] = append(graph[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for _, name := range lm.registered {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(lm.services) {
		return nil, ErrCircularDependency
	}
	return result, nil
}

// broadcastEvent logs the event and hands it to the channel and listeners
func (lm *LifecycleManager) broadcastEvent(event LifecycleEvent) {
	if event.Error != nil {
		lm.log.Error("lifecycle event",
			slog.String("type", event.Type),
			slog.String("service", event.Service),
			slog.Any("error", event.Error))
	} else {
		lm.log.Debug("lifecycle event",
			slog.String("type", event.Type),
			slog.String("service", event.Service))
	}

	select {
	case lm.eventChan <- event:
	default:
	}

	for _, listener := range lm.listeners {
		go func(l func(LifecycleEvent)) {
			defer func() {
				if r := recover(); r != nil {
					lm.log.Error("lifecycle listener panicked", slog.Any("recovered", r))
				}
			}()
			l(event)
		}(listener)
	}
}
