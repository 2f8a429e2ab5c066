package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

const metricsNamespace = "stockrag"

// Metrics holds the Prometheus collectors of the sync and chat services. A
// nil *Metrics records nothing.
type Metrics struct {
	syncDuration     *prometheus.HistogramVec
	syncRuns         *prometheus.CounterVec
	indexedDocuments *prometheus.GaugeVec
	chatTurns        *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of entity type syncs.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"entity_type", "outcome"}),
		syncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sync_runs_total",
			Help:      "Entity type syncs by outcome.",
		}, []string{"entity_type", "outcome"}),
		indexedDocuments: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "indexed_documents",
			Help:      "Documents indexed by the last successful sync of each entity type.",
		}, []string{"entity_type"}),
		chatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by answering strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		strategyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chat_strategy_duration_seconds",
			Help:      "Duration of response strategy attempts.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 25, 45, 60},
		}, []string{"strategy"}),
	}
}

func (m *Metrics) observeSync(t domain.EntityType, outcome SyncOutcome, d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.WithLabelValues(string(t), string(outcome)).Observe(d.Seconds())
	m.syncRuns.WithLabelValues(string(t), string(outcome)).Inc()
}

func (m *Metrics) setIndexedDocuments(t domain.EntityType, n int) {
	if m == nil {
		return
	}
	m.indexedDocuments.WithLabelValues(string(t)).Set(float64(n))
}

func (m *Metrics) observeChatTurn(strategy, outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) observeStrategy(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.strategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}
