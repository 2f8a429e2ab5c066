package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "value", result["key"])
}

func TestJSON_NilData(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, http.StatusAccepted, map[string]string{"entity_type": "invoices"})

	assert.Equal(t, http.StatusAccepted, w.Code)

	var result SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "invoices", data["entity_type"])
}

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"validation", domain.ErrUnknownEntityType, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("search: %w", domain.ErrInvalidFilter.WithCause(errors.New("bad field"))), http.StatusBadRequest},
		{"not found", domain.ErrSessionNotFound, http.StatusNotFound},
		{"unauthorized", domain.ErrInvalidAdminToken, http.StatusUnauthorized},
		{"not initialized", domain.ErrNotInitialized, http.StatusServiceUnavailable},
		{"index not ready", domain.ErrIndexNotReady, http.StatusServiceUnavailable},
		{"unavailable", domain.ErrStoreUnreachable, http.StatusServiceUnavailable},
		{"timeout", domain.ErrGenerationTimeout, http.StatusGatewayTimeout},
		{"internal", domain.ErrSyncFailed, http.StatusInternalServerError},
		{"unknown code", domain.NewDomainError("UNKNOWN", "unknown"), http.StatusInternalServerError},
		{"plain error", assert.AnError, http.StatusInternalServerError},
		{"chat connection", &service.ChatError{Kind: service.ChatErrorConnection}, http.StatusServiceUnavailable},
		{"chat index", &service.ChatError{Kind: service.ChatErrorIndexNotReady}, http.StatusServiceUnavailable},
		{"chat timeout", &service.ChatError{Kind: service.ChatErrorTimeout}, http.StatusGatewayTimeout},
		{"chat generic", &service.ChatError{Kind: service.ChatErrorGeneric}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestHandleError_DomainError(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.ErrSessionNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "chat session not found", result.Error)
	assert.Equal(t, domain.ErrCodeNotFound, result.Code)
}

func TestHandleError_ChatErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, &service.ChatError{
		Kind:    service.ChatErrorTimeout,
		Message: "The assistant took too long to answer.",
		Err:     errors.New("ollama: context deadline exceeded"),
	})

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.NotContains(t, w.Body.String(), "ollama")

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "The assistant took too long to answer.", result.Error)
	assert.Equal(t, "timeout", result.Code)
}

func TestHandleError_InternalHidesCause(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.ErrStorageOperationFail.WithCause(errors.New("dial tcp 10.0.0.5:5432")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestHandleError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestDecode(t *testing.T) {
	var body struct {
		Query string `json:"query"`
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"stock"}`))
	require.True(t, Decode(w, r, &body))
	assert.Equal(t, "stock", body.Query)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":`))
	assert.False(t, Decode(w, r, &body))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"`+strings.Repeat("x", 64)+`"}`))
	r.Body = http.MaxBytesReader(w, r.Body, 16)
	assert.False(t, Decode(w, r, &body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PAYLOAD_TOO_LARGE", resp.Code)
}
