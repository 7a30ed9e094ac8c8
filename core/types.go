package core

// MessageKind discriminates queued messages.
type MessageKind uint8

const (
	// MessageKindActivation is a pure-data activation of a file handler.
	MessageKindActivation MessageKind = iota
)

// String returns the string representation of MessageKind.
func (k MessageKind) String() string {
	switch k {
	case MessageKindActivation:
		return "activation"
	default:
		return "unknown"
	}
}

// Message is one pending activation. It is not modified after it has been
// queued.
type Message struct {
	// Path is the resolved relative path, used as the handler key
	Path string

	// Payload is the pure-data message body
	Payload []byte

	// Kind of the message
	Kind MessageKind
}

// NewMessage creates an activation message for path.
func NewMessage(path string, payload []byte) Message {
	return Message{Path: path, Payload: payload, Kind: MessageKindActivation}
}

// Signal tells a handler why it is being invoked.
type Signal int

const (
	// SignalStateActivation means a message was delivered to a state.
	SignalStateActivation Signal = iota + 1
)

// String returns the string representation of Signal.
func (s Signal) String() string {
	switch s {
	case SignalStateActivation:
		return "state_activation"
	default:
		return "unknown"
	}
}

// StateKind selects the runtime state implementation to create.
type StateKind uint8

const (
	// StateKindNPL is the default queued runtime state.
	StateKindNPL StateKind = iota
)

// String returns the string representation of StateKind.
func (k StateKind) String() string {
	switch k {
	case StateKindNPL:
		return "npl"
	default:
		return "unknown"
	}
}

// StateStats contains runtime statistics for a state.
type StateStats struct {
	// Name of the state, empty for anonymous states
	Name string

	// Total messages taken off the queue
	Processed uint64

	// Messages currently queued
	Queued int

	// Registered handlers
	Handlers int
}
