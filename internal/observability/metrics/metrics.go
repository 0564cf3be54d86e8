// Package metrics exposes relaycc's Prometheus gauges/counters/
// histograms, grounded in the teacher's observability/metrics package
// with the cache- and fallback-specific series dropped (caching and
// local fallback are explicit spec non-goals) and the remainder
// relabeled around compiles/workers/dispatch instead of
// tasks/cache/transfer.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaycc"

// Metrics holds every Prometheus series the producer emits.
type Metrics struct {
	// Counters
	CompilesTotal *prometheus.CounterVec

	// Gauges
	WorkersTotal  *prometheus.GaugeVec
	ActiveTasks   *prometheus.GaugeVec
	PendingResult prometheus.Gauge
	CircuitState  *prometheus.GaugeVec

	// Histograms
	CompileDuration *prometheus.HistogramVec
	DispatchLatency *prometheus.HistogramVec
	OutputBytes     *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the singleton metrics instance, registered against
// the default Prometheus registry.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
		defaultMetrics.Register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New builds an unregistered Metrics instance.
func New() *Metrics {
	return &Metrics{
		CompilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_total",
				Help:      "Total number of compiles dispatched, by language and outcome",
			},
			[]string{"lang", "status"},
		),

		WorkersTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_total",
				Help:      "Current number of registered workers by language",
			},
			[]string{"lang"},
		),
		ActiveTasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_tasks",
				Help:      "Number of requests currently in a worker's in-flight queue",
			},
			[]string{"worker"},
		),
		PendingResult: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_results",
				Help:      "Number of completed results waiting to be drained via NextResult",
			},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Per-worker circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"worker"},
		),

		CompileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "End-to-end duration from dispatch to result, by language and outcome",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"lang", "status"},
		),
		DispatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_latency_ms",
				Help:      "Time to hand a request off to a worker's outbound channel, in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"worker"},
		),
		OutputBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_output_bytes",
				Help:      "Size of a CompileResult's captured output",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"lang"},
		),
	}
}

// Register registers every series with reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.CompilesTotal,
		m.WorkersTotal,
		m.ActiveTasks,
		m.PendingResult,
		m.CircuitState,
		m.CompileDuration,
		m.DispatchLatency,
		m.OutputBytes,
	)
}

// Handler returns the HTTP handler for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CompileStatus is the outcome label used on compile-scoped series.
type CompileStatus string

const (
	CompileStatusSuccess CompileStatus = "success"
	CompileStatusFailure CompileStatus = "failure"
	CompileStatusTimeout CompileStatus = "timeout"
)

// RecordCompileComplete records one finished compile.
func (m *Metrics) RecordCompileComplete(lang string, status CompileStatus, durationSec float64, outputBytes float64) {
	m.CompilesTotal.WithLabelValues(lang, string(status)).Inc()
	m.CompileDuration.WithLabelValues(lang, string(status)).Observe(durationSec)
	m.OutputBytes.WithLabelValues(lang).Observe(outputBytes)
}

// SetWorkerCount updates the per-language registered-worker gauge.
func (m *Metrics) SetWorkerCount(lang string, count float64) {
	m.WorkersTotal.WithLabelValues(lang).Set(count)
}

// SetActiveTaskCount updates one worker's in-flight queue depth.
func (m *Metrics) SetActiveTaskCount(workerID string, count float64) {
	m.ActiveTasks.WithLabelValues(workerID).Set(count)
}

// SetPendingResults updates the global result-queue depth.
func (m *Metrics) SetPendingResults(depth float64) {
	m.PendingResult.Set(depth)
}

// RecordDispatchLatency records how long handing a request to a
// worker's outbound channel took.
func (m *Metrics) RecordDispatchLatency(workerID string, latencyMs float64) {
	m.DispatchLatency.WithLabelValues(workerID).Observe(latencyMs)
}

// CircuitStateValue represents a circuit breaker state as a numeric
// gauge value.
type CircuitStateValue float64

const (
	CircuitStateClosed   CircuitStateValue = 0
	CircuitStateHalfOpen CircuitStateValue = 1
	CircuitStateOpen     CircuitStateValue = 2
)

// SetCircuitState updates one worker's circuit breaker state.
func (m *Metrics) SetCircuitState(workerID string, state CircuitStateValue) {
	m.CircuitState.WithLabelValues(workerID).Set(float64(state))
}

// RemoveWorkerMetrics clears every per-worker series for a worker that
// has disconnected, so stale label combinations don't linger forever.
func (m *Metrics) RemoveWorkerMetrics(workerID string) {
	m.ActiveTasks.DeleteLabelValues(workerID)
	m.DispatchLatency.DeleteLabelValues(workerID)
	m.CircuitState.DeleteLabelValues(workerID)
}
