// Package metrics exposes the supervisor's Prometheus instrumentation.
//
// Grounded on alex's observability.Metrics usage in task_execution_service.go
// (IncrementActiveSessions/RecordTaskExecution around every task run), wired
// here against github.com/prometheus/client_golang directly since the core
// supervisor has no OpenTelemetry metrics pipeline to ride on.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters and gauges the supervisor updates.
type Registry struct {
	TasksCreated   prometheus.Counter
	TasksCompleted *prometheus.CounterVec
	PoolRunning    prometheus.Gauge
	PoolQueued     prometheus.Gauge
}

// New constructs a Registry and registers it against reg. Passing nil uses
// prometheus.NewRegistry() so tests never collide with the global default
// registry.
func New(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Registry{
		TasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ocmcp_tasks_created_total",
			Help: "Total tasks created via createTask.",
		}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocmcp_tasks_completed_total",
			Help: "Total tasks reaching a terminal status, labelled by status.",
		}, []string{"status"}),
		PoolRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocmcp_pool_running",
			Help: "Number of worker processes currently running.",
		}),
		PoolQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocmcp_pool_queued",
			Help: "Number of admission requests waiting for a pool slot.",
		}),
	}

	reg.MustRegister(r.TasksCreated, r.TasksCompleted, r.PoolRunning, r.PoolQueued)
	return r
}

// RecordTerminal increments the completed-tasks counter for status.
func (r *Registry) RecordTerminal(status string) {
	if r == nil {
		return
	}
	r.TasksCompleted.WithLabelValues(status).Inc()
}

// RecordCreated increments the created-tasks counter.
func (r *Registry) RecordCreated() {
	if r == nil {
		return
	}
	r.TasksCreated.Inc()
}

// SetPoolStatus reflects the current pool occupancy.
func (r *Registry) SetPoolStatus(running, queued int) {
	if r == nil {
		return
	}
	r.PoolRunning.Set(float64(running))
	r.PoolQueued.Set(float64(queued))
}
