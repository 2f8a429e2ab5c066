package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/stockrag/internal/api"
	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

func TestChatHandler_Chat(t *testing.T) {
	svc := new(MockChatService)
	svc.On("HandleMessage", mock.Anything, service.ChatRequest{
		SessionID: "s-1",
		UserID:    "u-9",
		Message:   "Which invoices are overdue?",
	}).Return(&service.ChatResponse{
		SessionID: "s-1",
		Reply:     "Invoice INV-1 is 12 days overdue.",
		Strategy:  service.StrategyEnhancedSearch,
		Provider:  "ollama",
		Language:  "en",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"session_id":"s-1","message":"Which invoices are overdue?"}`))
	req.Header.Set("X-User-ID", "u-9")
	w := httptest.NewRecorder()
	NewChatHandler(svc).Chat(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	out := decodeData[service.ChatResponse](t, w)
	assert.Equal(t, "s-1", out.SessionID)
	assert.Equal(t, service.StrategyEnhancedSearch, out.Strategy)
	svc.AssertExpectations(t)
}

func TestChatHandler_EmptyMessage(t *testing.T) {
	svc := new(MockChatService)

	w := httptest.NewRecorder()
	NewChatHandler(svc).Chat(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"   "}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "HandleMessage", mock.Anything, mock.Anything)
}

func TestChatHandler_Failures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
		code     string
	}{
		{
			name:     "provider down",
			err:      &service.ChatError{Kind: service.ChatErrorConnection, Message: "The assistant is temporarily unavailable.", Err: errors.New("dial tcp: connection refused")},
			expected: http.StatusServiceUnavailable,
			code:     "connection",
		},
		{
			name:     "timed out",
			err:      &service.ChatError{Kind: service.ChatErrorTimeout, Message: "The assistant took too long to answer.", Err: domain.ErrGenerationTimeout},
			expected: http.StatusGatewayTimeout,
			code:     "timeout",
		},
		{
			name:     "not initialized",
			err:      domain.ErrNotInitialized,
			expected: http.StatusServiceUnavailable,
			code:     domain.ErrCodeNotInitialized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatService)
			svc.On("HandleMessage", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := httptest.NewRecorder()
			NewChatHandler(svc).Chat(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`)))

			assert.Equal(t, tt.expected, w.Code)
			assert.NotContains(t, w.Body.String(), "dial tcp")

			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}
