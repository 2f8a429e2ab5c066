package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

const (
	ComponentOK   = "ok"
	ComponentDown = "down"
)

type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func componentHealth(err error) ComponentHealth {
	if err != nil {
		return ComponentHealth{Status: ComponentDown, Error: err.Error()}
	}
	return ComponentHealth{Status: ComponentOK}
}

// HealthReport aggregates store connectivity and embedding readiness.
type HealthReport struct {
	Healthy     bool            `json:"healthy"`
	VectorStore ComponentHealth `json:"vector_store"`
	Checkpoints ComponentHealth `json:"checkpoints"`
	Embeddings  ComponentHealth `json:"embeddings"`
	CheckedAt   time.Time       `json:"checked_at"`
}

func (s *SyncService) Health(ctx context.Context) *HealthReport {
	r := &HealthReport{
		VectorStore: componentHealth(s.indexer.Ping(ctx)),
		Checkpoints: componentHealth(s.statuses.Ping(ctx)),
		Embeddings:  componentHealth(s.indexer.Ready()),
		CheckedAt:   s.now().UTC(),
	}
	r.Healthy = r.VectorStore.Status == ComponentOK &&
		r.Checkpoints.Status == ComponentOK &&
		r.Embeddings.Status == ComponentOK
	return r
}

type TypeQuality struct {
	EntityType    domain.EntityType `json:"entity_type"`
	DocumentCount int               `json:"document_count"`
	IndexedChunks int64             `json:"indexed_chunks"`
	LastSync      *time.Time        `json:"last_sync,omitempty"`
	SecondsSince  int64             `json:"seconds_since_sync,omitempty"`
	NeverSynced   bool              `json:"never_synced"`
	Stale         bool              `json:"stale"`
	LastError     string            `json:"last_error,omitempty"`
	Runs          int               `json:"runs"`
	Failures      int               `json:"failures"`
	ErrorRate     float64           `json:"error_rate"`
}

// DataQualityReport summarizes counts, sync recency and error rates per
// entity type.
type DataQualityReport struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	Types          []TypeQuality `json:"types"`
	TotalDocuments int           `json:"total_documents"`
	TotalChunks    int64         `json:"total_chunks"`
	TypesInError   int           `json:"types_in_error"`
	ErrorRate      float64       `json:"error_rate"`
}

func (s *SyncService) DataQuality(ctx context.Context) (*DataQualityReport, error) {
	statuses, err := s.statuses.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sync statuses: %w", err)
	}
	stats, err := s.indexer.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}

	now := s.now().UTC()
	byType := make(map[domain.EntityType]*domain.SyncStatus, len(statuses))
	for _, st := range statuses {
		byType[st.EntityType] = st
	}

	report := &DataQualityReport{GeneratedAt: now, TotalChunks: stats.TotalChunks}
	for _, t := range s.registry.Types() {
		st, ok := byType[t]
		if !ok {
			st = domain.NewSyncStatus(t)
		}
		perf := s.perf.snapshot(t)

		q := TypeQuality{
			EntityType:    t,
			DocumentCount: st.DocumentCount,
			IndexedChunks: stats.ChunksByType[t],
			NeverSynced:   st.NeverSynced(),
			LastError:     st.LastError,
			Runs:          perf.runs,
			Failures:      perf.failures,
			ErrorRate:     ratio(perf.failures, perf.runs),
		}
		if q.NeverSynced {
			q.Stale = true
		} else {
			last := st.LastSync
			q.LastSync = &last
			q.SecondsSince = int64(now.Sub(last).Seconds())
			q.Stale = now.Sub(last) > s.cfg.StaleAfter
		}
		if st.LastError != "" {
			report.TypesInError++
		}

		report.TotalDocuments += st.DocumentCount
		report.Types = append(report.Types, q)
	}
	report.ErrorRate = ratio(report.TypesInError, len(report.Types))
	return report, nil
}

type TypePerformance struct {
	EntityType domain.EntityType `json:"entity_type"`
	Samples    int               `json:"samples"`
	AverageMS  float64           `json:"average_ms"`
	LastMS     int64             `json:"last_ms"`
	MaxMS      int64             `json:"max_ms"`
}

// PerformanceMetrics returns the rolling average of the last sync durations
// per entity type.
func (s *SyncService) PerformanceMetrics() []TypePerformance {
	out := make([]TypePerformance, 0, len(s.registry.Types()))
	for _, t := range s.registry.Types() {
		perf := s.perf.snapshot(t)
		p := TypePerformance{EntityType: t, Samples: len(perf.samples)}
		if len(perf.samples) > 0 {
			var total time.Duration
			for _, d := range perf.samples {
				total += d
				p.MaxMS = max(p.MaxMS, d.Milliseconds())
			}
			p.AverageMS = math.Round(float64(total.Microseconds())/float64(len(perf.samples))) / 1000
			p.LastMS = perf.samples[len(perf.samples)-1].Milliseconds()
		}
		out = append(out, p)
	}
	return out
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 1000
}
