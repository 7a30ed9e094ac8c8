package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects start and stop calls across services
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// TestService is a simple service implementation for testing
type TestService struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
	health   error

	mu      sync.Mutex
	started bool
	stopped bool
}

func (s *TestService) Name() string {
	return s.name
}

func (s *TestService) Start(ctx context.Context) error {
	if s.rec != nil {
		s.rec.add("start:" + s.name)
	}
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *TestService) Stop(ctx context.Context) error {
	if s.rec != nil {
		s.rec.add("stop:" + s.name)
	}
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return s.stopErr
}

func (s *TestService) Health(ctx context.Context) (HealthStatus, error) {
	if s.health != nil {
		return HealthStatus{}, s.health
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && !s.stopped {
		return HealthStatus{State: HealthHealthy, Message: "Service is running"}, nil
	}
	return HealthStatus{State: HealthUnhealthy, Message: "Service is not running"}, nil
}

func TestLifecycleManager(t *testing.T) {
	lm := NewLifecycleManager(quietLogger())
	svc := &TestService{name: "test"}

	require.NoError(t, lm.Register("test", svc))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, lm.Start(ctx))
	assert.True(t, lm.IsStarted())
	assert.True(t, svc.started)

	health, err := lm.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, health["test"].State)
	assert.False(t, health["test"].LastCheck.IsZero())

	require.NoError(t, lm.Stop(ctx))
	assert.True(t, svc.stopped)
	assert.False(t, lm.IsStarted())
}

func TestLifecycleDependencyOrder(t *testing.T) {
	rec := &recorder{}
	lm := NewLifecycleManager(quietLogger())

	require.NoError(t, lm.Register("watcher", &TestService{name: "watcher", rec: rec}, "runtime"))
	require.NoError(t, lm.Register("metrics", &TestService{name: "metrics", rec: rec}, "runtime"))
	require.NoError(t, lm.Register("runtime", &TestService{name: "runtime", rec: rec}))

	ctx := context.Background()
	require.NoError(t, lm.Start(ctx))
	assert.Equal(t, []string{"runtime", "watcher", "metrics"}, lm.StartOrder())

	require.NoError(t, lm.Stop(ctx))
	assert.Equal(t, []string{
		"start:runtime", "start:watcher", "start:metrics",
		"stop:metrics", "stop:watcher", "stop:runtime",
	}, rec.list())
}

func TestLifecycleRegisterErrors(t *testing.T) {
	lm := NewLifecycleManager(quietLogger())

	assert.ErrorIs(t, lm.Register("", &TestService{}), ErrInvalidRegistration)
	assert.ErrorIs(t, lm.Register("x", nil), ErrInvalidRegistration)

	require.NoError(t, lm.Register("x", &TestService{name: "x"}))
	assert.ErrorIs(t, lm.Register("x", &TestService{name: "x"}), ErrDuplicateService)

	require.NoError(t, lm.Start(context.Background()))
	assert.ErrorIs(t, lm.Register("y", &TestService{name: "y"}), ErrAlreadyStarted)
	assert.ErrorIs(t, lm.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, []string{"x"}, lm.Services())
}

func TestLifecycleUnknownDependency(t *testing.T) {
	lm := NewLifecycleManager(quietLogger())
	require.NoError(t, lm.Register("a", &TestService{name: "a"}, "ghost"))

	err := lm.Start(context.Background())
	assert.ErrorIs(t, err, ErrUnknownDependency)

	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "start", appErr.Operation)
}

func TestLifecycleCircularDependency(t *testing.T) {
	lm := NewLifecycleManager(quietLogger())
	require.NoError(t, lm.Register("a", &TestService{name: "a"}, "b"))
	require.NoError(t, lm.Register("b", &TestService{name: "b"}, "a"))

	assert.ErrorIs(t, lm.Start(context.Background()), ErrCircularDependency)
}

func TestLifecycleStartFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	lm := NewLifecycleManager(quietLogger())

	require.NoError(t, lm.Register("a", &TestService{name: "a", rec: rec}))
	require.NoError(t, lm.Register("b", &TestService{name: "b", rec: rec, startErr: boom}, "a"))
	require.NoError(t, lm.Register("c", &TestService{name: "c", rec: rec}, "b"))

	err := lm.Start(context.Background())
	assert.ErrorIs(t, err, boom)

	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "b", appErr.Service)

	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, rec.list())
	assert.False(t, lm.IsStarted())
	assert.Empty(t, lm.StartOrder())
}

func TestLifecycleStopContinuesAfterError(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("stop failed")
	lm := NewLifecycleManager(quietLogger())

	require.NoError(t, lm.Register("a", &TestService{name: "a", rec: rec}))
	require.NoError(t, lm.Register("b", &TestService{name: "b", rec: rec, stopErr: boom}, "a"))

	ctx := context.Background()
	require.NoError(t, lm.Start(ctx))

	err := lm.Stop(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, rec.list())

	assert.NoError(t, lm.Stop(ctx), "stopping a stopped manager is a no-op")
}

func TestLifecycleHealthConcurrentProbes(t *testing.T) {
	lm := NewLifecycleManager(quietLogger())
	require.NoError(t, lm.Register("ok", &TestService{name: "ok"}))
	require.NoError(t, lm.Register("sick", &TestService{name: "sick", health: errors.New("disk full")}))

	ctx := context.Background()
	require.NoError(t, lm.Start(ctx))
	defer lm.Stop(ctx)

	health, err := lm.Health(ctx)
	require.NoError(t, err)
	require.Len(t, health, 2)
	assert.Equal(t, HealthHealthy, health["ok"].State)
	assert.Equal(t, HealthUnhealthy, health["sick"].State)
	assert.Equal(t, "disk full", health["sick"].Message)
}

func TestLifecycleEvents(t *testing.T) {
	lm := NewLifecycleManager(quietLogger())

	var (
		mu     sync.Mutex
		events []string
	)
	lm.AddListener(func(e LifecycleEvent) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	})
	lm.AddListener(func(LifecycleEvent) { panic("listener bug") })

	require.NoError(t, lm.Register("a", &TestService{name: "a"}))
	require.NoError(t, lm.Start(context.Background()))
	require.NoError(t, lm.Stop(context.Background()))

	var types []string
	for len(types) < 8 {
		select {
		case e := <-lm.Events():
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.Equal(t, []string{
		EventServiceRegistered,
		EventLifecycleStarting,
		EventServiceStarting,
		EventServiceStarted,
		EventLifecycleStarted,
		EventLifecycleStopping,
		EventServiceStopping,
		EventServiceStopped,
	}, types)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 9
	}, time.Second, 10*time.Millisecond)
}

func TestApplicationErrorUnwrap(t *testing.T) {
	base := errors.New("base")
	err := &ApplicationError{Operation: "stop", Service: "runtime", Err: base}

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "stop failed for service runtime: base", err.Error())
	assert.Equal(t, "start failed: base", (&ApplicationError{Operation: "start", Err: base}).Error())
}
