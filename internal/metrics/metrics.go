// Package metrics exposes orchestrator run counters over Prometheus, gated
// behind the metrics_addr config key or MAHABHARATHA_METRICS_ADDR
// (disabled by default per §5; there is no command-line flag).
// Grounded on langgraph-go's graph/metrics.go: a custom prometheus.Registry
// wired through promauto.With, served by promhttp on a dedicated listener
// rather than the DefaultRegisterer/DefaultServeMux so an orchestrator run
// never leaks state into another process sharing the binary.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes the orchestrator's run-level metrics.
type Recorder struct {
	registry *prometheus.Registry

	tasksDispatched  *prometheus.CounterVec
	tasksCompleted   *prometheus.CounterVec
	stalls           *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	gateRuns         *prometheus.CounterVec
	gateLatencyMS    *prometheus.HistogramVec
	workersActive    prometheus.Gauge
	levelsInProgress prometheus.Gauge
}

// New creates a Recorder with its own registry, namespaced "mahabharatha".
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		tasksDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mahabharatha",
			Name:      "tasks_dispatched_total",
			Help:      "Tasks assigned to a worker, by level.",
		}, []string{"level"}),
		tasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mahabharatha",
			Name:      "tasks_completed_total",
			Help:      "Tasks that reached a terminal status, by status.",
		}, []string{"status"}),
		stalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mahabharatha",
			Name:      "worker_stalls_total",
			Help:      "Stall/crash events detected by the heartbeat monitor, by cause.",
		}, []string{"cause"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mahabharatha",
			Name:      "escalations_total",
			Help:      "Escalation records created, by category.",
		}, []string{"category"}),
		gateRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mahabharatha",
			Name:      "gate_runs_total",
			Help:      "Gate executions, by gate name and outcome.",
		}, []string{"gate", "outcome"}),
		gateLatencyMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mahabharatha",
			Name:      "gate_latency_ms",
			Help:      "Gate execution duration in milliseconds.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 30000, 120000},
		}, []string{"gate"}),
		workersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mahabharatha",
			Name:      "workers_active",
			Help:      "Workers currently running.",
		}),
		levelsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mahabharatha",
			Name:      "levels_in_progress",
			Help:      "Levels currently in the running or merging state.",
		}),
	}
}

// TaskDispatched records a task assignment at the given level.
func (r *Recorder) TaskDispatched(level int) {
	r.tasksDispatched.WithLabelValues(strconv.Itoa(level)).Inc()
}

// TaskCompleted records a task reaching a terminal status.
func (r *Recorder) TaskCompleted(status string) {
	r.tasksCompleted.WithLabelValues(status).Inc()
}

// Stall records a heartbeat-detected stall or crash, by cause.
func (r *Recorder) Stall(cause string) {
	r.stalls.WithLabelValues(cause).Inc()
}

// Escalation records an escalation being raised, by category.
func (r *Recorder) Escalation(category string) {
	r.escalations.WithLabelValues(category).Inc()
}

// GateRun records one gate execution's outcome and latency.
func (r *Recorder) GateRun(gate, outcome string, latency time.Duration) {
	r.gateRuns.WithLabelValues(gate, outcome).Inc()
	r.gateLatencyMS.WithLabelValues(gate).Observe(float64(latency.Milliseconds()))
}

// SetWorkersActive updates the current worker-running gauge.
func (r *Recorder) SetWorkersActive(n int) {
	r.workersActive.Set(float64(n))
}

// SetLevelsInProgress updates the current in-progress level count.
func (r *Recorder) SetLevelsInProgress(n int) {
	r.levelsInProgress.Set(float64(n))
}

// Serve starts an HTTP server exposing /metrics on addr and blocks until
// ctx is canceled, then shuts the server down gracefully.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
