package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg, "", nil), reg
}

func TestCollector_RecordRun(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordRun("completed", 0.8)
	c.RecordRun("completed", 0.4)
	c.RecordRun("error", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.pipelineRuns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pipelineRuns.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.confidence))
}

func TestCollector_ProviderAndEvaluation(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordProviderCall("generate", nil)
	c.RecordProviderCall("generate", errors.New("boom"))
	c.RecordEvaluationCase(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerCalls.WithLabelValues("generate", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerCalls.WithLabelValues("generate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluationCases.WithLabelValues("success")))
}

func TestCollector_StageDurationNamespace(t *testing.T) {
	c, reg := newTestCollector(t)
	c.ObserveStage("retrieval", 20*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "docqa_pipeline_stage_duration_seconds")
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRun("completed", 1)
		c.ObserveStage("synthesis", time.Second)
		c.RecordProviderCall("search", nil)
		c.RecordEvaluationCase(errors.New("x"))
	})
}
