package domain

import (
	"errors"
	"fmt"
)

// ServiceErrorKind classifies a failure of an external model service.
type ServiceErrorKind string

const (
	ServiceErrorAuth              ServiceErrorKind = "auth"
	ServiceErrorRateLimit         ServiceErrorKind = "rate_limit"
	ServiceErrorInvalidInput      ServiceErrorKind = "invalid_input"
	ServiceErrorTimeout           ServiceErrorKind = "timeout"
	ServiceErrorUnavailable       ServiceErrorKind = "unavailable"
	ServiceErrorMalformedResponse ServiceErrorKind = "malformed_response"
)

// ServiceError is returned by clients of the embedding and generation services.
type ServiceError struct {
	Service string
	Kind    ServiceErrorKind
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service error (%s): %v", e.Service, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s service error (%s)", e.Service, e.Kind)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed.
func (e *ServiceError) Retryable() bool {
	switch e.Kind {
	case ServiceErrorRateLimit, ServiceErrorTimeout, ServiceErrorUnavailable:
		return true
	}
	return false
}

// NewServiceError creates a new ServiceError
func NewServiceError(service string, kind ServiceErrorKind, err error) *ServiceError {
	return &ServiceError{Service: service, Kind: kind, Err: err}
}

// IsRetryable reports whether err carries a retryable ServiceError.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
