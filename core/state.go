package core

import (
	"bytes"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// StateOption configures a RuntimeState.
type StateOption func(*stateOptions)

type stateOptions struct {
	logger  *slog.Logger
	metrics Metrics
	notify  func()
}

// WithStateLogger sets the logger used to report handler panics.
func WithStateLogger(logger *slog.Logger) StateOption {
	return func(o *stateOptions) { o.logger = logger }
}

// WithStateMetrics sets the metrics sink of the state.
func WithStateMetrics(m Metrics) StateOption {
	return func(o *stateOptions) { o.metrics = m }
}

// WithNotify sets a function called after every successful enqueue.
func WithNotify(fn func()) StateOption {
	return func(o *stateOptions) { o.notify = fn }
}

// RuntimeState is the default State: a FIFO queue drained by Process and a
// handler per path.
type RuntimeState struct {
	name    string
	label   string
	log     *slog.Logger
	metrics Metrics
	notify  func()

	// mu guards queue, spare and handlers
	mu       sync.Mutex
	queue    []Message
	spare    []Message
	handlers map[string]Handler

	processed atomic.Uint64
	current   atomic.Pointer[Message]
}

// NewRuntimeState creates a new state. An empty name makes it anonymous.
func NewRuntimeState(name string, opts ...StateOption) *RuntimeState {
	o := stateOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = NopMetrics()
	}

	return &RuntimeState{
		name:     name,
		label:    stateLabel(name),
		log:      o.logger,
		metrics:  o.metrics,
		notify:   o.notify,
		handlers: make(map[string]Handler),
	}
}

// DefaultStateFactory creates a RuntimeState for every kind.
func DefaultStateFactory(name string, _ StateKind, opts ...StateOption) State {
	return NewRuntimeState(name, opts...)
}

// Name returns the state name.
func (s *RuntimeState) Name() string {
	return s.name
}

// Activate queues an activation message for path. The payload is copied,
// so the caller may reuse its buffer once Activate returns.
func (s *RuntimeState) Activate(path string, payload []byte) error {
	s.enqueue(NewMessage(path, bytes.Clone(payload)))
	return nil
}

func (s *RuntimeState) enqueue(msg Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	depth := len(s.queue)
	s.mu.Unlock()

	s.metrics.MessageEnqueued(s.label)
	s.reportDepth(depth)
	if s.notify != nil {
		s.notify()
	}
}

// RegisterHandler installs or removes the handler for path.
func (s *RuntimeState) RegisterHandler(path string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handler == nil {
		delete(s.handlers, path)
		return
	}
	s.handlers[path] = handler
}

// Process handles the messages queued before the call. Messages queued by
// the handlers themselves wait for the next call.
func (s *RuntimeState) Process() int {
	s.mu.Lock()
	batch := s.queue
	s.queue = s.spare
	s.spare = nil
	s.mu.Unlock()

	for i := range batch {
		s.processMessage(&batch[i])
		batch[i] = Message{}
	}

	s.mu.Lock()
	if s.spare == nil {
		s.spare = batch[:0]
	}
	depth := len(s.queue)
	s.mu.Unlock()

	if len(batch) > 0 {
		s.reportDepth(depth)
	}
	return len(batch)
}

// CurrentMessage returns the payload being handled, or nil outside a handler.
func (s *RuntimeState) CurrentMessage() ([]byte, int) {
	msg := s.current.Load()
	if msg == nil {
		return nil, 0
	}
	return msg.Payload, len(msg.Payload)
}

// Stats returns current statistics for this state.
func (s *RuntimeState) Stats() StateStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StateStats{
		Name:      s.name,
		Processed: s.processed.Load(),
		Queued:    len(s.queue),
		Handlers:  len(s.handlers),
	}
}

// reportDepth publishes the queue depth of named states. Anonymous states
// share one label, so a gauge for them would be meaningless.
func (s *RuntimeState) reportDepth(depth int) {
	if s.name != "" {
		s.metrics.QueueDepth(s.label, depth)
	}
}

// processMessage handles a single message.
func (s *RuntimeState) processMessage(msg *Message) {
	s.processed.Add(1)

	if msg.Kind != MessageKindActivation {
		return
	}

	s.mu.Lock()
	handler := s.handlers[msg.Path]
	s.mu.Unlock()

	if handler == nil {
		s.metrics.MessageProcessed(s.label, false)
		return
	}
	s.invoke(handler, msg)
}

// invoke runs handler with msg as the current message. A panic is contained
// to this message.
func (s *RuntimeState) invoke(handler Handler, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.HandlerPanic(s.label)
			s.log.Error("handler panicked",
				slog.String("state", s.label),
				slog.String("path", msg.Path),
				slog.Any("recovered", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	leave := s.enterMessage(msg)
	defer leave()

	handler(SignalStateActivation, s)
	s.metrics.MessageProcessed(s.label, true)
}

// enterMessage publishes msg as the current message until the returned
// function is called.
func (s *RuntimeState) enterMessage(msg *Message) func() {
	s.current.Store(msg)
	return func() { s.current.Store(nil) }
}

var _ State = (*RuntimeState)(nil)
