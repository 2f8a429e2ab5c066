package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/stockrag/internal/api"
	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

type SyncService interface {
	Statuses(ctx context.Context) ([]*domain.SyncStatus, error)
	Health(ctx context.Context) *service.HealthReport
	DataQuality(ctx context.Context) (*service.DataQualityReport, error)
	PerformanceMetrics() []service.TypePerformance
	SyncType(ctx context.Context, name string) (*service.SyncResult, error)
	FullResync(ctx context.Context) ([]service.SyncResult, error)
	ClearIndex(ctx context.Context) (int64, error)
}

type SyncHandler struct {
	svc SyncService
}

func NewSyncHandler(svc SyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

type SyncStatusResponse struct {
	EntityType    string  `json:"entity_type"`
	LastSync      *string `json:"last_sync"`
	DocumentCount int     `json:"document_count"`
	Checksum      string  `json:"checksum,omitempty"`
	LastError     string  `json:"last_error,omitempty"`
}

func statusToResponse(s *domain.SyncStatus) SyncStatusResponse {
	resp := SyncStatusResponse{
		EntityType:    string(s.EntityType),
		DocumentCount: s.DocumentCount,
		Checksum:      s.Checksum,
		LastError:     s.LastError,
	}
	if !s.NeverSynced() {
		last := s.LastSync.UTC().Format("2006-01-02T15:04:05Z")
		resp.LastSync = &last
	}
	return resp
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.Statuses(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]SyncStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, statusToResponse(s))
	}
	api.Success(w, http.StatusOK, out)
}

// Health answers 503 while any dependency is down so load balancers can act
// on the status code alone.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Health(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	api.Success(w, status, report)
}

func (h *SyncHandler) Quality(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.DataQuality(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, report)
}

func (h *SyncHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.svc.PerformanceMetrics())
}

func (h *SyncHandler) SyncType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "type")
	if name == "" {
		api.Error(w, http.StatusBadRequest, "entity type is required")
		return
	}

	result, err := h.svc.SyncType(r.Context(), name)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

type FullResyncResponse struct {
	Results []service.SyncResult `json:"results"`
	Failed  int                  `json:"failed"`
}

func (h *SyncHandler) FullResync(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.FullResync(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := FullResyncResponse{Results: results}
	for _, res := range results {
		if res.Outcome == service.SyncOutcomeFailed {
			resp.Failed++
		}
	}
	api.Success(w, http.StatusOK, resp)
}

type ClearIndexResponse struct {
	DeletedChunks int64 `json:"deleted_chunks"`
}

func (h *SyncHandler) ClearIndex(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.ClearIndex(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, ClearIndexResponse{DeletedChunks: deleted})
}
