// Package observability wires engine lifecycle events into Prometheus
// collectors.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/magicprompt/loom/pkg/domain"
)

// Metrics holds the engine collectors.
type Metrics struct {
	nodeVisits  *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	branches    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_node_visits_total",
				Help: "Total number of node visits",
			},
			[]string{"node_id", "layer"},
		),
		llmDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "loom_llm_duration_seconds",
				Help: "Duration of model invocations",
			},
			[]string{"node_id"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_failures_total",
				Help: "Step failures by kind",
			},
			[]string{"kind"},
		),
		branches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "loom_branches_total",
				Help: "Total number of fan-outs into parallel sub-traversals",
			},
		),
	}
	reg.MustRegister(m.nodeVisits, m.llmDuration, m.failures, m.branches)
	return m
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.StepEvent) {
			m.nodeVisits.WithLabelValues(e.NodeID, e.Layer).Inc()
		},
		OnLLMReturn: func(ctx context.Context, e *domain.LLMEvent) {
			m.llmDuration.WithLabelValues(e.NodeID).Observe(e.Duration.Seconds())
		},
		OnBranch: func(ctx context.Context, e *domain.BranchEvent) {
			m.branches.Inc()
		},
		OnFailure: func(ctx context.Context, e *domain.FailureEvent) {
			m.failures.WithLabelValues(e.Kind).Inc()
		},
	}
}
