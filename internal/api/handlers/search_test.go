package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

func TestSearchHandler_Search(t *testing.T) {
	svc := new(MockSearchService)
	expected := service.SearchRequest{
		Query:   "overdue invoices",
		Filters: service.SearchFilters{EntityTypes: []domain.EntityType{domain.EntityInvoices}, Tags: []string{"overdue"}},
		Limit:   5,
	}
	svc.On("Search", mock.Anything, expected).Return(&service.SearchResponse{
		Query: "overdue invoices",
		Hits:  []service.SearchHit{{DocumentID: "invoices:i1", EntityType: domain.EntityInvoices, EntityID: "i1", Relevance: 0.91}},
		Total: 1,
	}, nil)

	body := `{"query":"overdue invoices","filters":{"entity_types":["invoices"],"tags":["overdue"]},"limit":5}`
	w := httptest.NewRecorder()
	NewSearchHandler(svc).Search(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	out := decodeData[service.SearchResponse](t, w)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "i1", out.Hits[0].EntityID)
	svc.AssertExpectations(t)
}

func TestSearchHandler_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"malformed", `{"query":`, "invalid request body"},
		{"missing query", `{"limit":3}`, "query is required"},
		{"min score out of range", `{"query":"stock","min_score":1.5}`, "min_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSearchService)

			w := httptest.NewRecorder()
			NewSearchHandler(svc).Search(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
			svc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
		})
	}
}

func TestSearchHandler_IndexNotReady(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Search", mock.Anything, mock.Anything).Return(nil, domain.ErrIndexNotReady)

	w := httptest.NewRecorder()
	NewSearchHandler(svc).Search(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"stock"}`)))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrCodeNotInitialized)
}

func TestSearchHandler_InvalidFilter(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Search", mock.Anything, mock.Anything).Return(nil, domain.ErrInvalidFilter)

	w := httptest.NewRecorder()
	NewSearchHandler(svc).Search(w, httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"stock","filters":{"attributes":{"Bad Field!":"x"}}}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchHandler_Advanced(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("AdvancedSearch", mock.Anything, service.SearchRequest{Query: "low stock", IncludeRelated: true}).Return(&service.AdvancedSearchResponse{
		SearchResponse: service.SearchResponse{Query: "low stock", Total: 2},
		Facets:         service.Facets{ByType: map[string]int{"products": 2}},
	}, nil)

	w := httptest.NewRecorder()
	NewSearchHandler(svc).Advanced(w, httptest.NewRequest(http.MethodPost, "/search/advanced", strings.NewReader(`{"query":"low stock","include_related":true}`)))

	require.Equal(t, http.StatusOK, w.Code)
	out := decodeData[service.AdvancedSearchResponse](t, w)
	assert.Equal(t, 2, out.Facets.ByType["products"])
	svc.AssertExpectations(t)
}

func TestSearchHandler_Raw(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("RawSearch", mock.Anything, "supplier", service.SearchFilters{}, 4).Return(nil, nil)

	w := httptest.NewRecorder()
	NewSearchHandler(svc).Raw(w, httptest.NewRequest(http.MethodPost, "/search/raw", strings.NewReader(`{"query":"supplier","limit":4}`)))

	require.Equal(t, http.StatusOK, w.Code)
	out := decodeData[RawSearchResponse](t, w)
	assert.Equal(t, "supplier", out.Query)
	assert.NotNil(t, out.Hits)
	assert.Empty(t, out.Hits)
	svc.AssertExpectations(t)
}

func TestSearchHandler_RawMissingQuery(t *testing.T) {
	svc := new(MockSearchService)

	w := httptest.NewRecorder()
	NewSearchHandler(svc).Raw(w, httptest.NewRequest(http.MethodPost, "/search/raw", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
