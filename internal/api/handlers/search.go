package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/stockrag/internal/api"
	"github.com/cloo-solutions/stockrag/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
	AdvancedSearch(ctx context.Context, req service.SearchRequest) (*service.AdvancedSearchResponse, error)
	RawSearch(ctx context.Context, query string, filters service.SearchFilters, limit int) ([]service.SearchHit, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type RawSearchRequest struct {
	Query   string                `json:"query"`
	Filters service.SearchFilters `json:"filters"`
	Limit   int                   `json:"limit"`
}

type RawSearchResponse struct {
	Query string              `json:"query"`
	Hits  []service.SearchHit `json:"hits"`
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (service.SearchRequest, bool) {
	var req service.SearchRequest
	if !api.Decode(w, r, &req) {
		return req, false
	}
	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		api.Error(w, http.StatusBadRequest, "min_score must be between 0 and 1")
		return req, false
	}
	return req, true
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *SearchHandler) Advanced(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.AdvancedSearch(r.Context(), req)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *SearchHandler) Raw(w http.ResponseWriter, r *http.Request) {
	var req RawSearchRequest
	if !api.Decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := h.svc.RawSearch(r.Context(), req.Query, req.Filters, req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if hits == nil {
		hits = []service.SearchHit{}
	}
	api.Success(w, http.StatusOK, RawSearchResponse{Query: req.Query, Hits: hits})
}
