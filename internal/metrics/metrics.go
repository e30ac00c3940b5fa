// Package metrics defines the Prometheus instrumentation surface for the
// epoch state machine, the contact registry and the responder, following the
// teacher's promauto-registered CounterVec/GaugeVec/HistogramVec pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ocx/flnode/internal/defl"
)

// Metrics holds every Prometheus metric the node emits. It satisfies
// node.Metrics (RecordApply/RecordEpochClose/RecordDuplicateVote/
// RecordDuplicateWeights) plus the registry's and responder's narrow
// Metrics interfaces (SetRegisteredClients, RecordUnicastFailure,
// RecordBroadcastBytes).
type Metrics struct {
	ApplyTotal          *prometheus.CounterVec
	EpochCloseTotal      prometheus.Counter
	EpochCloseClientSize prometheus.Histogram
	DuplicateVoteTotal   prometheus.Counter
	DuplicateWeightsTotal prometheus.Counter
	CurrentEpochID       prometheus.Gauge
	RegisteredClients    prometheus.Gauge
	UnicastFailureTotal  *prometheus.CounterVec
	BroadcastBytesTotal  prometheus.Counter
}

// New creates and registers every metric against the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates and registers every metric against reg. Tests
// pass a fresh prometheus.NewRegistry() so repeated construction doesn't
// collide with the global default registerer.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ApplyTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flnode_apply_total",
				Help: "Total ClientRequests applied by the state machine, by method and resulting status.",
			},
			[]string{"method", "status"},
		),
		EpochCloseTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flnode_epoch_close_total",
				Help: "Total number of epoch closures.",
			},
		),
		EpochCloseClientSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flnode_epoch_close_client_count",
				Help:    "Number of clients with submitted weights at epoch close.",
				Buckets: prometheus.LinearBuckets(0, 5, 10),
			},
		),
		DuplicateVoteTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flnode_duplicate_vote_total",
				Help: "Total NEW_EPOCH_VOTE requests rejected as a duplicate vote.",
			},
		),
		DuplicateWeightsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flnode_duplicate_weights_total",
				Help: "Total UPD_WEIGHTS requests that overwrote an existing submission in the current epoch.",
			},
		),
		CurrentEpochID: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "flnode_current_epoch_id",
				Help: "The state machine's current epoch ID.",
			},
		),
		RegisteredClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "flnode_registered_clients",
				Help: "Number of clients currently in the contact registry.",
			},
		),
		UnicastFailureTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flnode_unicast_failure_total",
				Help: "Total unicast reply failures, by failure kind.",
			},
			[]string{"kind"},
		),
		BroadcastBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flnode_broadcast_bytes_total",
				Help: "Total payload bytes sent across all broadcast replies.",
			},
		),
	}
}

// RecordApply implements node.Metrics.
func (m *Metrics) RecordApply(method defl.Method, status defl.Status) {
	m.ApplyTotal.WithLabelValues(method.String(), status.String()).Inc()
}

// RecordEpochClose implements node.Metrics.
func (m *Metrics) RecordEpochClose(epochID int64, clientCount int) {
	m.EpochCloseTotal.Inc()
	m.EpochCloseClientSize.Observe(float64(clientCount))
	m.CurrentEpochID.Set(float64(epochID + 1))
}

// RecordDuplicateVote implements node.Metrics.
func (m *Metrics) RecordDuplicateVote() {
	m.DuplicateVoteTotal.Inc()
}

// RecordDuplicateWeights implements node.Metrics.
func (m *Metrics) RecordDuplicateWeights() {
	m.DuplicateWeightsTotal.Inc()
}

// RecordUnicastFailure records a responder unicast failure by kind
// ("registration" or "network").
func (m *Metrics) RecordUnicastFailure(kind string) {
	m.UnicastFailureTotal.WithLabelValues(kind).Inc()
}

// RecordBroadcastBytes records the payload size of one broadcast send.
func (m *Metrics) RecordBroadcastBytes(n int) {
	m.BroadcastBytesTotal.Add(float64(n))
}

// SetRegisteredClients updates the registry size gauge.
func (m *Metrics) SetRegisteredClients(n int) {
	m.RegisteredClients.Set(float64(n))
}
