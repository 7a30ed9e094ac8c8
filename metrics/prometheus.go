// Package metrics provides the Prometheus implementation of core.Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/najoast/nplmini/core"
)

// timer wraps a Prometheus observer to implement core.Timer.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) core.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for tick latency (in seconds).
var defaultBuckets = []float64{
	.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1,
}

// runtimeMetrics implements core.Metrics using Prometheus.
type runtimeMetrics struct {
	enqueuedTotal  *prometheus.CounterVec
	processedTotal *prometheus.CounterVec
	panicsTotal    *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	runDuration    prometheus.Histogram
	poolSize       prometheus.Gauge
	rejectedTotal  *prometheus.CounterVec
}

// NewRuntimeMetrics creates the runtime metrics and registers them on reg.
// An empty namespace defaults to "npl".
func NewRuntimeMetrics(reg prometheus.Registerer, namespace string) core.Metrics {
	if namespace == "" {
		namespace = "npl"
	}

	m := &runtimeMetrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "messages_enqueued_total",
			Help:      "Total number of activations queued on a state",
		}, []string{"state"}),

		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "messages_processed_total",
			Help:      "Total number of messages taken off a state queue",
		}, []string{"state", "handled"}),

		panicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "handler_panics_total",
			Help:      "Total number of recovered handler panics",
		}, []string{"state"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "queue_depth",
			Help:      "Messages waiting after the last processing pass",
		}, []string{"state"}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "run_duration_seconds",
			Help:      "Duration of a manager Run call in seconds",
			Buckets:   defaultBuckets,
		}),

		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "states",
			Help:      "Number of states in the pool",
		}),

		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "activations_rejected_total",
			Help:      "Total number of activations that could not be routed",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.enqueuedTotal,
		m.processedTotal,
		m.panicsTotal,
		m.queueDepth,
		m.runDuration,
		m.poolSize,
		m.rejectedTotal,
	)

	return m
}

func (m *runtimeMetrics) MessageEnqueued(state string) {
	m.enqueuedTotal.WithLabelValues(state).Inc()
}

func (m *runtimeMetrics) QueueDepth(state string, depth int) {
	m.queueDepth.WithLabelValues(state).Set(float64(depth))
}

func (m *runtimeMetrics) MessageProcessed(state string, handled bool) {
	m.processedTotal.WithLabelValues(state, boolToStr(handled)).Inc()
}

func (m *runtimeMetrics) HandlerPanic(state string) {
	m.panicsTotal.WithLabelValues(state).Inc()
}

func (m *runtimeMetrics) RunDuration() core.Timer {
	return newTimer(m.runDuration)
}

func (m *runtimeMetrics) PoolSize(size int) {
	m.poolSize.Set(float64(size))
}

// StateDeleted drops the queue depth series of a deleted state. Counters
// are kept since a later state may reuse the name.
func (m *runtimeMetrics) StateDeleted(state string) {
	m.queueDepth.DeleteLabelValues(state)
}

func (m *runtimeMetrics) ActivationRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

var _ core.Metrics = (*runtimeMetrics)(nil)

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// NewRegistry creates a registry holding the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
