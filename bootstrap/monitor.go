package bootstrap

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/najoast/nplmini/core"
	"github.com/najoast/nplmini/metrics"
)

// stateView is the JSON form of core.StateStats
type stateView struct {
	Name      string `json:"name"`
	Anonymous bool   `json:"anonymous,omitempty"`
	Processed uint64 `json:"processed"`
	Queued    int    `json:"queued"`
	Handlers  int    `json:"handlers"`
}

func newStateView(st core.StateStats) stateView {
	return stateView{
		Name:      st.Name,
		Anonymous: st.Name == "",
		Processed: st.Processed,
		Queued:    st.Queued,
		Handlers:  st.Handlers,
	}
}

// monitor serves the metrics, health and state inspection endpoints
type monitor struct {
	instanceID string
	manager    *core.Manager
	runtime    *RuntimeService
	log        *slog.Logger
}

// NewMonitorHandler builds the HTTP handler of the metrics server:
//
//	GET {metricsPath}    Prometheus exposition of gatherer
//	GET /healthz         runtime health, 503 unless healthy
//	GET /states          statistics of every state in pool order
//	GET /states/{name}   statistics of one named state, "main" included
func NewMonitorHandler(metricsPath, instanceID string, gatherer prometheus.Gatherer,
	runtime *RuntimeService, logger *slog.Logger) http.Handler {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &monitor{
		instanceID: instanceID,
		runtime:    runtime,
		log:        logger,
	}
	if runtime != nil {
		m.manager = runtime.manager
	}

	r := mux.NewRouter()
	r.Handle(metricsPath, metrics.Handler(gatherer)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", m.health).Methods(http.MethodGet)
	r.HandleFunc("/states", m.listStates).Methods(http.MethodGet)
	r.HandleFunc("/states/{name}", m.stateDetails).Methods(http.MethodGet)
	return r
}

func (m *monitor) health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{State: HealthUnknown, Message: "no runtime"}
	if m.runtime != nil {
		var err error
		status, err = m.runtime.Health(r.Context())
		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
	}

	code := http.StatusOK
	if status.State != HealthHealthy {
		code = http.StatusServiceUnavailable
	}
	m.writeJSON(w, code, map[string]interface{}{
		"instance": m.instanceID,
		"runtime":  status,
	})
}

func (m *monitor) listStates(w http.ResponseWriter, _ *http.Request) {
	views := []stateView{}
	if m.manager != nil {
		for _, st := range m.manager.Stats() {
			views = append(views, newStateView(st))
		}
	}
	m.writeJSON(w, http.StatusOK, views)
}

func (m *monitor) stateDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var state core.State
	if m.manager != nil {
		state = m.manager.GetState(name)
	}
	if state == nil {
		m.writeJSON(w, http.StatusNotFound, map[string]string{"error": core.ErrStateNotFound.Error()})
		return
	}
	m.writeJSON(w, http.StatusOK, newStateView(state.Stats()))
}

func (m *monitor) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log.Warn("monitor response not written", slog.Any("error", err))
	}
}
