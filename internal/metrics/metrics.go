// Package metrics counts process lifecycle events for the shell.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "myshell"

// Failure kinds used as the "kind" label of spawn failures.
const (
	FailNotFound      = "not_found"
	FailNotExecutable = "not_executable"
	FailResource      = "resource"
)

// Metrics holds the shell's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg       *prometheus.Registry
	spawned   prometheus.Counter
	failures  *prometheus.CounterVec
	exits     *prometheus.CounterVec
	pipelines prometheus.Histogram
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_spawned_total",
			Help:      "Child processes successfully started.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Stages that could not be started, by kind.",
		}, []string{"kind"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Reaped child processes, by exit code.",
		}, []string{"code"}),
		pipelines: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time from first spawn to last reap.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	m.reg.MustRegister(m.spawned, m.failures, m.exits, m.pipelines)
	return m
}

// Spawned counts a child process that started.
func (m *Metrics) Spawned() {
	if m == nil {
		return
	}
	m.spawned.Inc()
}

// SpawnFailed counts a stage that produced no process, by failure kind.
func (m *Metrics) SpawnFailed(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// Exited counts a reaped child by its reported exit code.
func (m *Metrics) Exited(code int) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(strconv.Itoa(code)).Inc()
}

// PipelineDone observes the wall time of one pipeline run.
func (m *Metrics) PipelineDone(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelines.Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
