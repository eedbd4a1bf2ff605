package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

type ErrorKind string

const (
	ErrTimeout     ErrorKind = "TIMEOUT"
	ErrUnavailable ErrorKind = "UNAVAILABLE"
	ErrAuth        ErrorKind = "AUTH"
	ErrRateLimit   ErrorKind = "RATE_LIMIT"
	ErrMalformed   ErrorKind = "MALFORMED_RESPONSE"
)

// ProviderError — единственный тип ошибки, который выходит из Gateway.
type ProviderError struct {
	Kind     ErrorKind
	Provider Kind
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient — имеет ли смысл повторить вызов.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case ErrTimeout, ErrUnavailable, ErrAuth, ErrRateLimit:
		return true
	}
	return false
}

// StatusError — не-2xx ответ от бэкендов на голом net/http.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

var errEmptyResponse = errors.New("empty response")

func classify(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return kindForStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return kindForStatus(reqErr.HTTPStatusCode)
	}
	var stErr *StatusError
	if errors.As(err, &stErr) {
		return kindForStatus(stErr.Code)
	}

	if errors.Is(err, errEmptyResponse) {
		return ErrMalformed
	}
	return ErrUnavailable
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrAuth
	case code == http.StatusTooManyRequests:
		return ErrRateLimit
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		// в том числе 404 на неизвестную модель
		return ErrUnavailable
	}
}
