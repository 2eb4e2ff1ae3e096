// Package metrics exposes the engine's Prometheus instrumentation: step
// dispatch counts and latency by kind/outcome, and execution-level counters
// by terminal status (spec.md §5 non-functional: "operators must be able to
// observe executor latency and failure rate per step kind").
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the metrics the scheduler and engine record against.
type Registry struct {
	StepDispatches    *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	ExecutionsByState *prometheus.CounterVec
	ContextConflicts  prometheus.Counter
}

// New registers every metric against reg (pass prometheus.NewRegistry() for
// tests, or prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		StepDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "step_dispatch_total",
			Help:      "Step executor dispatches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowengine",
			Name:      "step_duration_seconds",
			Help:      "Step executor wall-clock duration by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		ExecutionsByState: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "executions_total",
			Help:      "Workflow executions reaching a terminal status.",
		}, []string{"status"}),
		ContextConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "context_version_conflicts_total",
			Help:      "Context Store commits rejected for a stale expected version.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
