package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	workflowsSubmitted *prometheus.CounterVec
	workflowsExecuted  *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	stepsExecuted      *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	activeExecutions   prometheus.Gauge

	llmCalls   *prometheus.CounterVec
	llmTokens  *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec

	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered with
// reg. A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		workflowsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepchain_workflows_submitted_total",
				Help: "Total number of workflow submissions",
			},
			[]string{"status"},
		),
		workflowsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepchain_workflows_executed_total",
				Help: "Total number of finished workflow executions",
			},
			[]string{"status"},
		),
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepchain_workflow_duration_seconds",
				Help:    "Workflow execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		stepsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepchain_steps_executed_total",
				Help: "Total number of executed steps",
			},
			[]string{"status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepchain_step_duration_seconds",
				Help:    "Step execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		activeExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepchain_active_executions",
				Help: "Number of currently active executions",
			},
		),
		llmCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepchain_llm_calls_total",
				Help: "Total number of LLM API calls",
			},
			[]string{"model"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepchain_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"model", "type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepchain_llm_latency_seconds",
				Help:    "LLM API call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"model"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepchain_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepchain_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stepchain_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordWorkflowSubmitted records a workflow submission
func (c *Collector) RecordWorkflowSubmitted(status string) {
	c.workflowsSubmitted.WithLabelValues(status).Inc()
}

// RecordWorkflowExecuted records a finished workflow execution
func (c *Collector) RecordWorkflowExecuted(status string, duration time.Duration) {
	c.workflowsExecuted.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStepExecuted records a step attempt
func (c *Collector) RecordStepExecuted(status string, duration time.Duration) {
	c.stepsExecuted.WithLabelValues(status).Inc()
	c.stepDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCompletion records one completion call and its token usage
func (c *Collector) RecordCompletion(model string, latency time.Duration, inputTokens, outputTokens int64) {
	c.llmCalls.WithLabelValues(model).Inc()
	c.llmLatency.WithLabelValues(model).Observe(latency.Seconds())
	c.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	c.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// SetActiveExecutions sets the number of currently active executions
func (c *Collector) SetActiveExecutions(count int) {
	c.activeExecutions.Set(float64(count))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
