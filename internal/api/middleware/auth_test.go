package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testToken = "s3cr3t-admin-token"

func TestAdminToken_Success(t *testing.T) {
	var capturedActor string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedActor = GetActor(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/sync/full", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	AdminToken(testToken)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ActorAdmin, capturedActor)
}

func TestAdminToken_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic scheme", "Basic abc123", "invalid authorization format"},
		{"wrong token", "Bearer nope", "invalid admin token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodDelete, "/index", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AdminToken(testToken)(handler).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestAdminToken_EmptyTokenDisablesGuard(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Empty(t, GetActor(r.Context()))
	})

	req := httptest.NewRequest(http.MethodPost, "/sync/full", nil)
	w := httptest.NewRecorder()

	AdminToken("")(handler).ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetActor_VisibleToOuterMiddleware(t *testing.T) {
	var outerActor string
	outer := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			outerActor = GetActor(r.Context())
		})
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/sync/full", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)

	RequestID(outer(AdminToken(testToken)(inner))).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, ActorAdmin, outerActor)
}

func TestGetActor_EmptyContext(t *testing.T) {
	assert.Empty(t, GetActor(context.Background()))
}
