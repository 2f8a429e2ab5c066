package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel domain errors by code and message so that a wrapped
// copy carrying a cause still satisfies errors.Is against the sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithCause returns a copy of a sentinel error carrying err as its cause.
func (e *DomainError) WithCause(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeNotInitialized   = "NOT_INITIALIZED"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeTimeout          = "TIMEOUT"
)

// Validation errors
var (
	ErrUnknownEntityType    = NewDomainError(ErrCodeValidation, "unknown entity type")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidFilter        = NewDomainError(ErrCodeValidation, "invalid search filter")
	ErrInvalidSyncStatus    = NewDomainError(ErrCodeValidation, "invalid sync status")
	ErrEmptyMessage         = NewDomainError(ErrCodeValidation, "message cannot be empty")
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query cannot be empty")
)

// Not found errors
var (
	ErrSyncStatusNotFound = NewDomainError(ErrCodeNotFound, "sync status not found")
	ErrSessionNotFound    = NewDomainError(ErrCodeNotFound, "chat session not found")
)

// Authorization errors
var (
	ErrInvalidAdminToken = NewDomainError(ErrCodeUnauthorized, "invalid admin token")
)

// Readiness and availability errors
var (
	ErrNotInitialized    = NewDomainError(ErrCodeNotInitialized, "provider not initialized")
	ErrIndexNotReady     = NewDomainError(ErrCodeNotInitialized, "search index not ready")
	ErrStoreUnreachable  = NewDomainError(ErrCodeUnavailable, "store unreachable")
	ErrProviderOffline   = NewDomainError(ErrCodeUnavailable, "generation provider unreachable")
	ErrGenerationTimeout = NewDomainError(ErrCodeTimeout, "generation timed out")
)

// Operation errors
var (
	ErrSyncFailed           = NewDomainError(ErrCodeInternalError, "sync failed")
	ErrAllStrategiesFailed  = NewDomainError(ErrCodeInternalError, "all response strategies failed")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
