package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MainStateName is the name of the default runtime state.
const MainStateName = "main"

// DefaultMaxDrainPasses bounds Run(true) when handlers keep queueing work.
const DefaultMaxDrainPasses = 16

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStateFactory sets the factory used for new states.
func WithStateFactory(factory StateFactory) ManagerOption {
	return func(m *Manager) { m.factory = factory }
}

// WithLogger sets the logger of the manager and the states it creates.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = logger }
}

// WithMetrics sets the metrics sink of the manager and the states it creates.
func WithMetrics(metrics Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithMaxDrainPasses bounds the number of passes made by Run(true).
func WithMaxDrainPasses(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxDrainPasses = n
		}
	}
}

// Manager owns the pool of runtime states, routes activations to them and
// drives their processing.
//
// State implementations must be comparable (usually pointers); the manager
// identifies pool members by equality.
type Manager struct {
	factory        StateFactory
	log            *slog.Logger
	metrics        Metrics
	maxDrainPasses int

	initMu sync.Mutex

	// mu guards main, settings, pool and names. It is never held while a
	// handler runs.
	mu       sync.Mutex
	main     State
	settings *Settings
	pool     []State // creation order
	names    map[string]State

	// runMu serializes Run so the scratch buffer can be reused
	runMu   sync.Mutex
	scratch []State

	wake chan struct{}
}

// NewManager creates an initialized Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		factory:        DefaultStateFactory,
		log:            slog.Default(),
		metrics:        NopMetrics(),
		maxDrainPasses: DefaultMaxDrainPasses,
		names:          make(map[string]State),
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Init()
	return m
}

// Init creates the settings and the main state. It is idempotent.
func (m *Manager) Init() {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.main != nil {
		m.mu.Unlock()
		return
	}
	m.settings = NewSettings()
	m.mu.Unlock()

	main := m.CreateState(MainStateName, StateKindNPL)

	m.mu.Lock()
	m.main = main
	m.mu.Unlock()
}

// Close drops every state, the main state and the settings. Init may be
// called again afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	names := make([]string, 0, len(m.names)+1)
	if m.main != nil {
		names = append(names, MainStateName)
	}
	for name := range m.names {
		if name != MainStateName {
			names = append(names, name)
		}
	}
	m.main = nil
	m.settings = nil
	m.pool = nil
	m.names = make(map[string]State)
	m.mu.Unlock()

	m.metrics.PoolSize(0)
	for _, name := range names {
		m.metrics.StateDeleted(name)
	}
}

// Settings returns the runtime settings, or nil after Close.
func (m *Manager) Settings() *Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// MainState returns the default state.
func (m *Manager) MainState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.main
}

// CreateState returns the state called name, creating it if needed. An
// empty name always creates a new anonymous state.
func (m *Manager) CreateState(name string, kind StateKind) State {
	if name != "" {
		m.mu.Lock()
		existing, ok := m.names[name]
		m.mu.Unlock()
		if ok {
			return existing
		}
	}

	state := m.factory(name, kind,
		WithStateLogger(m.log),
		WithStateMetrics(m.metrics),
		WithNotify(m.signal))

	m.mu.Lock()
	if name != "" {
		// another goroutine may have won the race for this name
		if existing, ok := m.names[name]; ok {
			m.mu.Unlock()
			return existing
		}
		m.names[name] = state
	}
	m.pool = append(m.pool, state)
	size := len(m.pool)
	m.mu.Unlock()

	m.metrics.PoolSize(size)
	m.log.Debug("runtime state created",
		slog.String("state", stateLabel(name)),
		slog.String("kind", kind.String()),
		slog.Int("pool_size", size))
	return state
}

// GetState returns the state called name. An empty name or "main" returns
// the main state. It returns nil if there is no such state.
func (m *Manager) GetState(name string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" || name == MainStateName {
		return m.main
	}
	return m.names[name]
}

// CreateGetState returns the state called name, creating it on a miss.
func (m *Manager) CreateGetState(name string, kind StateKind) State {
	if state := m.GetState(name); state != nil {
		return state
	}
	return m.CreateState(name, kind)
}

// DeleteState removes state from the pool and, if it is named, from the
// name index. It returns false for nil, the main state, or a state that is
// not in the pool.
func (m *Manager) DeleteState(state State) bool {
	if state == nil {
		return false
	}

	m.mu.Lock()
	if state == m.main {
		m.mu.Unlock()
		m.log.Warn("refusing to delete main runtime state")
		return false
	}

	idx := -1
	for i, s := range m.pool {
		if s == state {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false
	}

	m.pool = append(m.pool[:idx], m.pool[idx+1:]...)
	name := state.Name()
	indexed := name != "" && m.names[name] == state
	if indexed {
		delete(m.names, name)
	}
	size := len(m.pool)
	m.mu.Unlock()

	m.metrics.PoolSize(size)
	if indexed {
		m.metrics.StateDeleted(name)
	}
	m.log.Debug("runtime state deleted",
		slog.String("state", stateLabel(name)),
		slog.Int("pool_size", size))
	return true
}

// States returns the states of the pool in creation order.
func (m *Manager) States() []State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]State, len(m.pool))
	copy(states, m.pool)
	return states
}

// Stats returns statistics for every state in creation order.
func (m *Manager) Stats() []StateStats {
	states := m.States()
	stats := make([]StateStats, 0, len(states))
	for _, s := range states {
		stats = append(stats, s.Stats())
	}
	return stats
}

// Run processes every state once. With drainToEnd it keeps making passes
// until one finds no message, up to the configured maximum. It returns the
// number of messages processed.
//
// Handlers may create, delete and activate states while Run is processing.
func (m *Manager) Run(drainToEnd bool) int {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	timer := m.metrics.RunDuration()
	defer timer.ObserveDuration()

	passes := 1
	if drainToEnd {
		passes = m.maxDrainPasses
	}

	total := 0
	for i := 0; i < passes; i++ {
		n := m.runOnce()
		total += n
		if n == 0 {
			break
		}
	}
	return total
}

// runOnce snapshots the pool and processes the snapshot without holding
// the pool lock.
func (m *Manager) runOnce() int {
	m.mu.Lock()
	m.scratch = append(m.scratch[:0], m.pool...)
	m.mu.Unlock()

	n := 0
	for i, state := range m.scratch {
		n += state.Process()
		m.scratch[i] = nil
	}
	m.scratch = m.scratch[:0]
	return n
}

// Activate queues payload for the file named by address.
//
// Remote addresses are rejected. A nil from routes to the main state. An
// explicit state name routes to that state. Otherwise the message goes to
// from itself.
func (m *Manager) Activate(from State, address string, payload []byte) error {
	addr := ParseAddress(address)

	if addr.IsRemote() {
		m.reject("remote", address)
		return fmt.Errorf("%w: %s", ErrRemoteRouting, addr.NID)
	}

	target := from
	switch {
	case from == nil:
		target = m.MainState()
		if target == nil {
			m.reject("not_initialized", address)
			return ErrNotInitialized
		}
	case addr.StateName != "":
		target = m.GetState(addr.StateName)
		if target == nil {
			m.reject("state_not_found", address)
			return fmt.Errorf("%w: %s", ErrStateNotFound, addr.StateName)
		}
	}

	return target.Activate(addr.RelativePath, payload)
}

// ActivateMain queues payload on behalf of the main state: a named state in
// address is honored and an unnamed address stays in main. It returns
// ErrNotInitialized after Close.
func (m *Manager) ActivateMain(address string, payload []byte) error {
	return m.Activate(m.MainState(), address, payload)
}

// Wait blocks until a message has been queued on a state created by this
// manager since the previous wake-up, or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) reject(reason, address string) {
	m.metrics.ActivationRejected(reason)
	m.log.Warn("activation rejected",
		slog.String("reason", reason),
		slog.String("address", address))
}
