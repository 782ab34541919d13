package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector a Region/Coordinator process reports.
// A nil *Metrics is valid: every method below guards against it so callers
// don't need a parallel "metrics enabled" branch.
type Metrics struct {
	bufferDepth      *prometheus.GaugeVec
	entriesHosted    *prometheus.GaugeVec
	shardsAllocated  prometheus.Gauge
	allocations      prometheus.Counter
	handoffsStarted  prometheus.Counter
	handoffsFinished *prometheus.CounterVec
	deadLetters      *prometheus.CounterVec
}

// New registers every collector against reg and returns the bundle. Pass
// prometheus.DefaultRegisterer for process-wide metrics, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions between cases.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		bufferDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shardkit",
			Subsystem: "region",
			Name:      "buffer_depth",
			Help:      "Number of messages currently buffered per shard awaiting resolution.",
		}, []string{"shard"}),
		entriesHosted: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shardkit",
			Subsystem: "shard",
			Name:      "entries_hosted",
			Help:      "Number of live entries currently hosted per shard.",
		}, []string{"shard"}),
		shardsAllocated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "shardkit",
			Subsystem: "coordinator",
			Name:      "shards_allocated",
			Help:      "Number of shards currently allocated to a region.",
		}),
		allocations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "shardkit",
			Subsystem: "coordinator",
			Name:      "allocations_total",
			Help:      "Total number of ShardHomeAllocated events persisted.",
		}),
		handoffsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "shardkit",
			Subsystem: "coordinator",
			Name:      "handoffs_started_total",
			Help:      "Total number of rebalance workers spawned.",
		}),
		handoffsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardkit",
			Subsystem: "coordinator",
			Name:      "handoffs_finished_total",
			Help:      "Total number of rebalance workers that finished, labeled by outcome.",
		}, []string{"outcome"}),
		deadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardkit",
			Subsystem: "region",
			Name:      "dead_letters_total",
			Help:      "Total number of messages dropped to the dead-letter sink, labeled by reason.",
		}, []string{"reason"}),
	}
}

// SetBufferDepth records the current buffered-message count for shard.
func (m *Metrics) SetBufferDepth(shard string, depth int) {
	if m == nil {
		return
	}
	m.bufferDepth.WithLabelValues(shard).Set(float64(depth))
}

// SetEntriesHosted records the current live-entry count for shard.
func (m *Metrics) SetEntriesHosted(shard string, n int) {
	if m == nil {
		return
	}
	m.entriesHosted.WithLabelValues(shard).Set(float64(n))
}

// SetShardsAllocated records the coordinator's total allocated-shard count.
func (m *Metrics) SetShardsAllocated(n int) {
	if m == nil {
		return
	}
	m.shardsAllocated.Set(float64(n))
}

// IncAllocations counts one ShardHomeAllocated event.
func (m *Metrics) IncAllocations() {
	if m == nil {
		return
	}
	m.allocations.Inc()
}

// IncHandoffStarted counts one rebalance worker spawn.
func (m *Metrics) IncHandoffStarted() {
	if m == nil {
		return
	}
	m.handoffsStarted.Inc()
}

// IncHandoffFinished counts one rebalance worker completion, labeled "ok"
// or "timeout" per spec.md §4.6's two RebalanceDone outcomes.
func (m *Metrics) IncHandoffFinished(ok bool) {
	if m == nil {
		return
	}
	outcome := "timeout"
	if ok {
		outcome = "ok"
	}
	m.handoffsFinished.WithLabelValues(outcome).Inc()
}

// IncDeadLetter counts one message dropped to the dead-letter sink.
func (m *Metrics) IncDeadLetter(reason string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(reason).Inc()
}
