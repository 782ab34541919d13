package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/metrics"
)

func TestNilMetricsMethodsDoNotPanic(t *testing.T) {
	var m *metrics.Metrics
	m.SetBufferDepth("A", 3)
	m.SetEntriesHosted("A", 1)
	m.SetShardsAllocated(2)
	m.IncAllocations()
	m.IncHandoffStarted()
	m.IncHandoffFinished(true)
	m.IncDeadLetter("buffer_full")
}

func TestIncAllocationsIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.IncAllocations()
	m.IncAllocations()

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "shardkit_coordinator_allocations_total" {
			found = true
			require.Len(t, f.Metric, 1)
			require.Equal(t, float64(2), f.Metric[0].GetCounter().GetValue())
		}
	}
	require.True(t, found, "expected shardkit_coordinator_allocations_total to be registered")
}

func TestIncHandoffFinishedLabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.IncHandoffFinished(true)
	m.IncHandoffFinished(false)
	m.IncHandoffFinished(false)

	families, err := reg.Gather()
	require.NoError(t, err)

	var metricsFound []*dto.Metric
	for _, f := range families {
		if f.GetName() == "shardkit_coordinator_handoffs_finished_total" {
			metricsFound = f.Metric
		}
	}
	require.Len(t, metricsFound, 2)
}
