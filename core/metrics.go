package core

// Timer measures the duration of an operation.
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}

// Metrics receives runtime instrumentation. All methods are thread-safe.
type Metrics interface {
	// Queue
	MessageEnqueued(state string)
	QueueDepth(state string, depth int)

	// Processing
	MessageProcessed(state string, handled bool)
	HandlerPanic(state string)
	RunDuration() Timer

	// Pool
	PoolSize(size int)
	StateDeleted(state string)
	ActivationRejected(reason string)
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// nopMetrics is a no-op implementation of Metrics.
type nopMetrics struct{}

func (nopMetrics) MessageEnqueued(string)        {}
func (nopMetrics) QueueDepth(string, int)        {}
func (nopMetrics) MessageProcessed(string, bool) {}
func (nopMetrics) HandlerPanic(string)           {}
func (nopMetrics) RunDuration() Timer            { return nopTimer{} }
func (nopMetrics) PoolSize(int)                  {}
func (nopMetrics) StateDeleted(string)           {}
func (nopMetrics) ActivationRejected(string)     {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }

// stateLabel is the metrics label for a state name.
func stateLabel(name string) string {
	if name == "" {
		return "anonymous"
	}
	return name
}
