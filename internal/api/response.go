package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// Decode reads a JSON body into v. On failure it writes 413 for bodies cut
// off by http.MaxBytesReader and 400 otherwise, and reports false.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		JSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large", Code: "PAYLOAD_TOO_LARGE"})
		return false
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return false
}

// DomainErrorToHTTP maps domain and chat errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var chatErr *service.ChatError
	if errors.As(err, &chatErr) {
		switch chatErr.Kind {
		case service.ChatErrorConnection, service.ChatErrorIndexNotReady:
			return http.StatusServiceUnavailable
		case service.ChatErrorTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusInternalServerError
		}
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation, domain.ErrCodeInvalidOperation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeNotInitialized, domain.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case domain.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an error response for err. Chat failures expose only
// their user-facing message; internal errors never leak their cause.
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)

	var chatErr *service.ChatError
	if errors.As(err, &chatErr) {
		JSON(w, status, ErrorResponse{Error: chatErr.Message, Code: string(chatErr.Kind)})
		return
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		msg := domainErr.Message
		if status != http.StatusInternalServerError && domainErr.Err != nil {
			msg = domainErr.Error()
		}
		JSON(w, status, ErrorResponse{Error: msg, Code: domainErr.Code})
		return
	}

	Error(w, status, http.StatusText(status))
}
