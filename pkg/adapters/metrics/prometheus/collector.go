package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	executionsSubmitted *prometheus.CounterVec
	executionsCompleted *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec
	nodesExecuted       *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec
	agentDelegations    *prometheus.CounterVec
	activeExecutions    prometheus.Gauge
}

// NewCollector creates a Prometheus metrics collector and registers
// its collectors with the default registry.
func NewCollector() *Collector {
	return &Collector{
		executionsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pentaflow_executions_submitted_total",
				Help: "Total number of workflow executions submitted",
			},
			[]string{"status"},
		),
		executionsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pentaflow_executions_completed_total",
				Help: "Total number of workflow executions finished, by terminal status and execution path",
			},
			[]string{"status", "path"},
		),
		executionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pentaflow_execution_duration_seconds",
				Help:    "Workflow execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"path"},
		),
		nodesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pentaflow_nodes_executed_total",
				Help: "Total number of nodes executed, by primitive type and outcome",
			},
			[]string{"primitive_type", "status"},
		),
		nodeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pentaflow_node_duration_seconds",
				Help:    "Node execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"primitive_type"},
		),
		agentDelegations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pentaflow_agent_delegations_total",
				Help: "Total number of agent delegation attempts, by outcome",
			},
			[]string{"outcome"},
		),
		activeExecutions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pentaflow_active_executions",
				Help: "Number of currently running executions",
			},
		),
	}
}

// RecordExecutionSubmitted counts a submission by its initial status.
func (c *Collector) RecordExecutionSubmitted(status string) {
	c.executionsSubmitted.WithLabelValues(status).Inc()
}

// RecordExecutionCompleted counts a finished execution and observes
// its duration.
func (c *Collector) RecordExecutionCompleted(status string, path string, duration time.Duration) {
	c.executionsCompleted.WithLabelValues(status, path).Inc()
	c.executionDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordNodeExecuted counts one node run and observes its duration.
func (c *Collector) RecordNodeExecuted(primitiveType string, status string, duration time.Duration) {
	c.nodesExecuted.WithLabelValues(primitiveType, status).Inc()
	c.nodeDuration.WithLabelValues(primitiveType).Observe(duration.Seconds())
}

// RecordAgentDelegation counts a delegation attempt outcome
// (delegated, fallback or unavailable).
func (c *Collector) RecordAgentDelegation(outcome string) {
	c.agentDelegations.WithLabelValues(outcome).Inc()
}

// SetActiveExecutions sets the running-executions gauge.
func (c *Collector) SetActiveExecutions(count int) {
	c.activeExecutions.Set(float64(count))
}
