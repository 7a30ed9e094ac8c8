package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(opts ...ManagerOption) *Manager {
	return NewManager(append([]ManagerOption{WithLogger(discardLogger())}, opts...)...)
}

func TestManagerInit(t *testing.T) {
	m := newTestManager()

	main := m.MainState()
	require.NotNil(t, main)
	assert.Equal(t, MainStateName, main.Name())
	assert.NotNil(t, m.Settings())

	m.Init()
	assert.Same(t, main, m.MainState())
	assert.Len(t, m.States(), 1)
}

func TestManagerGetState(t *testing.T) {
	m := newTestManager()
	main := m.MainState()

	assert.Same(t, main, m.GetState(""))
	assert.Same(t, main, m.GetState(MainStateName))
	assert.Nil(t, m.GetState("missing"))

	worker := m.CreateState("worker", StateKindNPL)
	assert.Same(t, worker, m.GetState("worker"))
}

func TestManagerCreateStateNameUniqueness(t *testing.T) {
	m := newTestManager()

	x1 := m.CreateState("x", StateKindNPL)
	x2 := m.CreateState("x", StateKindNPL)
	assert.Same(t, x1, x2)

	a1 := m.CreateState("", StateKindNPL)
	a2 := m.CreateState("", StateKindNPL)
	assert.NotSame(t, a1, a2)

	// anonymous states are in the pool but cannot be found by name
	assert.Len(t, m.States(), 4)
	assert.Same(t, m.MainState(), m.GetState(""))
}

func TestManagerCreateStateConcurrent(t *testing.T) {
	m := newTestManager()

	const n = 32
	results := make([]State, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.CreateGetState("shared", StateKindNPL)
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Len(t, m.States(), 2)
}

func TestManagerDeleteState(t *testing.T) {
	m := newTestManager()

	worker := m.CreateState("worker", StateKindNPL)
	require.True(t, m.DeleteState(worker))

	assert.Nil(t, m.GetState("worker"), "deleted name must leave the index")
	assert.Len(t, m.States(), 1)
	assert.False(t, m.DeleteState(worker), "second delete finds nothing")

	// the freed name can be reused by a new state
	again := m.CreateState("worker", StateKindNPL)
	assert.NotSame(t, worker, again)
	assert.Same(t, again, m.GetState("worker"))
}

func TestManagerDeleteStaleStateKeepsNewOwnerOfName(t *testing.T) {
	m := newTestManager()

	old := m.CreateState("worker", StateKindNPL)
	require.True(t, m.DeleteState(old))
	replacement := m.CreateState("worker", StateKindNPL)

	assert.False(t, m.DeleteState(old))
	assert.Same(t, replacement, m.GetState("worker"))
}

func TestManagerDeleteStateMainAndNil(t *testing.T) {
	m := newTestManager()

	assert.False(t, m.DeleteState(nil))
	assert.False(t, m.DeleteState(m.MainState()))
	assert.NotNil(t, m.GetState(MainStateName))
	assert.Len(t, m.States(), 1)
}

func TestManagerDeleteAnonymousState(t *testing.T) {
	m := newTestManager()

	anon := m.CreateState("", StateKindNPL)
	assert.True(t, m.DeleteState(anon))
	assert.Len(t, m.States(), 1)
}

func TestManagerActivateDefaultsToMain(t *testing.T) {
	m := newTestManager()

	var got []byte
	m.MainState().RegisterHandler("script/a.lua", func(_ Signal, s State) {
		got, _ = s.CurrentMessage()
	})

	require.NoError(t, m.Activate(nil, "script/a.lua", []byte("hello")))
	assert.Equal(t, 1, m.GetState("").Stats().Queued)

	m.Run(false)
	assert.Equal(t, []byte("hello"), got)
}

func TestManagerActivateRouting(t *testing.T) {
	m := newTestManager()

	from := m.CreateState("from", StateKindNPL)
	worker := m.CreateState("worker1", StateKindNPL)

	tests := []struct {
		name    string
		from    State
		address string
		wantErr error
		target  State
	}{
		{"remote rejected", from, "user001@paraengine.com:script/a.lua", ErrRemoteRouting, nil},
		{"remote rejected without from", nil, "(worker1)node:script/a.lua", ErrRemoteRouting, nil},
		{"nil from goes to main", nil, "(worker1)script/a.lua", nil, m.MainState()},
		{"named state", from, "(worker1)script/a.lua", nil, worker},
		{"main by name", from, "(main)script/a.lua", nil, m.MainState()},
		{"missing state", from, "(nobody)script/a.lua", ErrStateNotFound, nil},
		{"self", from, "script/a.lua", nil, from},
		{"glia is self", from, "(gl)script/a.lua", nil, from},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := map[State]int{}
			for _, s := range m.States() {
				before[s] = s.Stats().Queued
			}

			err := m.Activate(tt.from, tt.address, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				for _, s := range m.States() {
					assert.Equal(t, before[s], s.Stats().Queued)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, before[tt.target]+1, tt.target.Stats().Queued)
		})
	}

	m.Run(true)
}

func TestManagerActivateStatus(t *testing.T) {
	m := newTestManager()
	from := m.MainState()

	assert.Equal(t, StatusOK, StatusOf(m.Activate(from, "a.lua", nil)))
	assert.Equal(t, StatusStateNotFound, StatusOf(m.Activate(from, "(x)a.lua", nil)))
	assert.Equal(t, StatusRemoteRouting, StatusOf(m.Activate(from, "n:a.lua", nil)))
	assert.Equal(t, StatusError, StatusOf(errors.New("other")))
}

func TestManagerActivateMainHonorsStateName(t *testing.T) {
	m := newTestManager()
	worker := m.CreateState("worker1", StateKindNPL)

	require.NoError(t, m.ActivateMain("(worker1)script/a.lua", nil))
	require.NoError(t, m.ActivateMain("script/a.lua", nil))
	assert.ErrorIs(t, m.ActivateMain("(nobody)script/a.lua", nil), ErrStateNotFound)

	assert.Equal(t, 1, worker.Stats().Queued)
	assert.Equal(t, 1, m.MainState().Stats().Queued)
}

func TestManagerActivateAfterClose(t *testing.T) {
	m := newTestManager()
	m.Close()

	assert.ErrorIs(t, m.ActivateMain("a.lua", nil), ErrNotInitialized)
	assert.Nil(t, m.Settings())
	assert.Empty(t, m.States())

	m.Init()
	assert.NoError(t, m.ActivateMain("a.lua", nil))
	assert.Len(t, m.States(), 1)
}

func TestManagerRunProcessesAllStates(t *testing.T) {
	m := newTestManager()

	var mu sync.Mutex
	var got []string
	record := func(tag string) Handler {
		return func(Signal, State) {
			mu.Lock()
			got = append(got, tag)
			mu.Unlock()
		}
	}

	a := m.CreateState("a", StateKindNPL)
	b := m.CreateState("b", StateKindNPL)
	a.RegisterHandler("x", record("a"))
	b.RegisterHandler("x", record("b"))
	m.MainState().RegisterHandler("x", record("main"))

	require.NoError(t, m.Activate(a, "(b)x", nil))
	require.NoError(t, m.Activate(b, "(a)x", nil))
	require.NoError(t, m.ActivateMain("x", nil))

	assert.Equal(t, 3, m.Run(false))
	// pool order is creation order: main, a, b
	assert.Equal(t, []string{"main", "a", "b"}, got)
}

func TestManagerRunHandlersMutatePool(t *testing.T) {
	m := newTestManager()

	var created State
	m.MainState().RegisterHandler("spawn", func(Signal, State) {
		created = m.CreateState("child", StateKindNPL)
		created.RegisterHandler("hello", func(Signal, State) {})
		_ = m.Activate(m.MainState(), "(child)hello", nil)
		_ = m.Activate(created, "hello", nil)
	})
	m.MainState().RegisterHandler("kill", func(Signal, State) {
		m.DeleteState(m.GetState("child"))
	})

	require.NoError(t, m.ActivateMain("spawn", nil))

	done := make(chan int)
	go func() { done <- m.Run(false) }()

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("Run deadlocked while a handler created a state")
	}

	require.NotNil(t, created)
	assert.Equal(t, 2, created.Stats().Queued, "child work waits for the next tick")
	assert.Zero(t, m.MainState().Stats().Queued)

	require.NoError(t, m.ActivateMain("kill", nil))
	m.Run(true)
	assert.Nil(t, m.GetState("child"))
}

func TestManagerRunDrainToEnd(t *testing.T) {
	m := newTestManager(WithMaxDrainPasses(5))

	hops := 0
	m.MainState().RegisterHandler("hop", func(_ Signal, s State) {
		hops++
		if hops < 3 {
			_ = s.Activate("hop", nil)
		}
	})
	require.NoError(t, m.ActivateMain("hop", nil))

	assert.Equal(t, 3, m.Run(true))
	assert.Equal(t, 3, hops)

	// a handler that always re-queues is bounded by the pass limit
	m.MainState().RegisterHandler("forever", func(_ Signal, s State) {
		_ = s.Activate("forever", nil)
	})
	require.NoError(t, m.ActivateMain("forever", nil))
	assert.Equal(t, 5, m.Run(true))
	assert.Equal(t, 1, m.Run(false))
}

func TestManagerConcurrentActivateSingleState(t *testing.T) {
	m := newTestManager()

	const (
		goroutines = 10
		perG       = 300
	)

	var mu sync.Mutex
	count := 0
	m.MainState().RegisterHandler("count", func(Signal, State) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				assert.NoError(t, m.ActivateMain("count", nil))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*perG, m.Run(false))
	assert.Equal(t, goroutines*perG, count)
}

func TestManagerWait(t *testing.T) {
	m := newTestManager()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)

	woke := make(chan error, 1)
	go func() { woke <- m.Wait(context.Background()) }()

	require.NoError(t, m.ActivateMain("a", nil))

	select {
	case err := <-woke:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait was not woken by an activation")
	}
}

func TestManagerStats(t *testing.T) {
	m := newTestManager()
	m.CreateState("worker", StateKindNPL)
	require.NoError(t, m.Activate(nil, "a", nil))

	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, MainStateName, stats[0].Name)
	assert.Equal(t, 1, stats[0].Queued)
	assert.Equal(t, "worker", stats[1].Name)
}

// recordingState is a custom State used to check that the manager works
// with any implementation.
type recordingState struct {
	name string
	mu   sync.Mutex
	got  []string
}

func (s *recordingState) Name() string { return s.name }

func (s *recordingState) Activate(path string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, path)
	return nil
}

func (s *recordingState) RegisterHandler(string, Handler) {}

func (s *recordingState) Process() int { return 0 }

func (s *recordingState) CurrentMessage() ([]byte, int) { return nil, 0 }

func (s *recordingState) Stats() StateStats { return StateStats{Name: s.name} }

func TestManagerCustomStateFactory(t *testing.T) {
	var kinds []StateKind
	m := newTestManager(WithStateFactory(func(name string, kind StateKind, _ ...StateOption) State {
		kinds = append(kinds, kind)
		return &recordingState{name: name}
	}))

	require.NoError(t, m.ActivateMain("(gl)script/a.lua", nil))

	main, ok := m.MainState().(*recordingState)
	require.True(t, ok)
	assert.Equal(t, []string{"script/a.lua"}, main.got)
	assert.Equal(t, []StateKind{StateKindNPL}, kinds)
}
