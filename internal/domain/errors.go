package domain

import (
	"errors"
	"fmt"
)

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

// Is matches any DomainError carrying the same code, so sentinels work with errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
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

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Pipeline error codes
const (
	ErrCodeUnsupportedFormat     = "UNSUPPORTED_FORMAT"
	ErrCodeExtractionFailed      = "EXTRACTION_FAILED"
	ErrCodeEmptyDocument         = "EMPTY_DOCUMENT"
	ErrCodeEmbeddingServiceError = "EMBEDDING_SERVICE_ERROR"
	ErrCodeDimensionMismatch     = "DIMENSION_MISMATCH"
	ErrCodeIndexNotFound         = "INDEX_NOT_FOUND"
	ErrCodeIndexCorrupt          = "INDEX_CORRUPT"
	ErrCodeAnswerUnavailable     = "ANSWER_UNAVAILABLE"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidTopK          = NewDomainError(ErrCodeValidation, "k must be at least 1")
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question is required")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrIndexNotFound    = NewDomainError(ErrCodeIndexNotFound, "index not found")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Pipeline errors
var (
	ErrUnsupportedFormat     = NewDomainError(ErrCodeUnsupportedFormat, "unsupported file format")
	ErrExtractionFailed      = NewDomainError(ErrCodeExtractionFailed, "text extraction failed")
	ErrEmptyDocument         = NewDomainError(ErrCodeEmptyDocument, "document contains no text")
	ErrEmbeddingServiceError = NewDomainError(ErrCodeEmbeddingServiceError, "embedding service failed")
	ErrDimensionMismatch     = NewDomainError(ErrCodeDimensionMismatch, "embedding dimensions do not match")
	ErrIndexCorrupt          = NewDomainError(ErrCodeIndexCorrupt, "index is corrupt")
	ErrIndexOutdated         = NewDomainError(ErrCodeInvalidOperation, "index was built with a different configuration, reindex required")
	ErrAnswerUnavailable     = NewDomainError(ErrCodeAnswerUnavailable, "answer unavailable")
	ErrStorageOperationFail  = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
