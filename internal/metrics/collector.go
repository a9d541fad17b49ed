// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "docqa"

// Collector records pipeline metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	pipelineRuns    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	providerCalls   *prometheus.CounterVec
	evaluationCases *prometheus.CounterVec
	confidence      prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers the pipeline metrics with reg. Passing
// prometheus.DefaultRegisterer exposes them through promhttp.Handler.
func NewCollector(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.pipelineRuns = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of question answering runs by final status",
		},
		[]string{"status"},
	)

	c.stageDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	c.providerCalls = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Calls to external providers by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	c.evaluationCases = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_cases_total",
			Help:      "Evaluated test cases by outcome",
		},
		[]string{"status"},
	)

	c.confidence = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_confidence",
			Help:      "Confidence of completed answers",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	c.logger.Debug("metrics registered", zap.String("namespace", namespace))
	return c
}

// RecordRun counts a finished run. status is the final pipeline state.
func (c *Collector) RecordRun(status string, confidence float64) {
	if c == nil {
		return
	}
	c.pipelineRuns.WithLabelValues(status).Inc()
	if status == "completed" {
		c.confidence.Observe(confidence)
	}
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) RecordProviderCall(operation string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.providerCalls.WithLabelValues(operation, status).Inc()
}

func (c *Collector) RecordEvaluationCase(err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.evaluationCases.WithLabelValues(status).Inc()
}
