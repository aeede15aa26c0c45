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

// Common domain error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeNoConnection        = "NO_ACTIVE_CONNECTION"
	ErrCodeUnsupportedModality = "UNSUPPORTED_MODALITY_COMBINATION"
	ErrCodeCollaboratorFailure = "MODALITY_COLLABORATOR_FAILURE"
	ErrCodeAllModalitiesFailed = "ALL_MODALITIES_FAILED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Connection and session errors
var (
	ErrNoActiveConnection = NewDomainError(ErrCodeNoConnection, "no active connection")
	ErrSessionNotFound    = NewDomainError(ErrCodeNotFound, "search session not found")
)

// Search request errors
var (
	ErrUnsupportedModalityCombination = NewDomainError(ErrCodeUnsupportedModality, "request names no usable modality")
	ErrAllModalitiesFailed            = NewDomainError(ErrCodeAllModalitiesFailed, "all requested modalities failed")
	ErrInvalidFilterRange             = NewDomainError(ErrCodeValidation, "filter range is malformed")
	ErrInvalidPagination              = NewDomainError(ErrCodeValidation, "offset and limit must be non-negative")
)

// Collaborator errors
var (
	ErrCollaboratorUnavailable = NewDomainError(ErrCodeCollaboratorFailure, "modality collaborator is not configured")
)
