package core

// Handler handles messages delivered to one path of a State. The payload of
// the message being handled is available from state.CurrentMessage().
type Handler func(signal Signal, state State)

// State is an independently queued message sink.
type State interface {
	// Name returns the state name. Empty means anonymous.
	Name() string

	// Activate queues a message for path. It is safe to call from any
	// goroutine and does not wait for the message to be handled.
	Activate(path string, payload []byte) error

	// RegisterHandler installs the handler for path, replacing any
	// previous one. A nil handler unregisters.
	RegisterHandler(path string, handler Handler)

	// Process handles every message queued before the call and returns
	// how many were taken. It must be called from one goroutine at a time.
	Process() int

	// CurrentMessage returns the message being handled. It is only valid
	// inside a handler invoked by Process.
	CurrentMessage() (payload []byte, length int)

	// Stats returns current statistics for this state.
	Stats() StateStats
}

// StateFactory builds the State used for a newly created name.
type StateFactory func(name string, kind StateKind, opts ...StateOption) State
