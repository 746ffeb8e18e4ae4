package openai

import (
	"context"
	"errors"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// classify maps transport and API failures onto domain.ServiceError kinds.
func classify(service string, err error) error {
	var se *domain.ServiceError
	if errors.As(err, &se) {
		return err
	}

	kind := domain.ServiceErrorUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.ServiceErrorTimeout
	case errors.Is(err, ErrEmptyCompletion), errors.Is(err, ErrOutOfSequence):
		kind = domain.ServiceErrorMalformedResponse
	default:
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		var netErr net.Error
		switch {
		case errors.As(err, &apiErr):
			kind = kindForStatus(apiErr.HTTPStatusCode)
		case errors.As(err, &reqErr):
			kind = kindForStatus(reqErr.HTTPStatusCode)
		case errors.As(err, &netErr) && netErr.Timeout():
			kind = domain.ServiceErrorTimeout
		}
	}

	return domain.NewServiceError(service, kind, err)
}

func kindForStatus(status int) domain.ServiceErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.ServiceErrorAuth
	case status == http.StatusTooManyRequests:
		return domain.ServiceErrorRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return domain.ServiceErrorTimeout
	case status >= 500:
		return domain.ServiceErrorUnavailable
	case status >= 400:
		return domain.ServiceErrorInvalidInput
	}
	return domain.ServiceErrorUnavailable
}
