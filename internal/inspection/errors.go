package inspection

import (
	"errors"
	"fmt"

	"github.com/Vovarama1992/otk-assistant/internal/ai"
)

type ErrorKind string

const (
	ErrMediaTooLarge       ErrorKind = "MEDIA_TOO_LARGE"
	ErrUnsupportedFormat   ErrorKind = "UNSUPPORTED_FORMAT"
	ErrDurationExceeded    ErrorKind = "DURATION_EXCEEDED"
	ErrResolutionExceeded  ErrorKind = "RESOLUTION_EXCEEDED"
	ErrProviderTimeout     ErrorKind = "PROVIDER_TIMEOUT"
	ErrProviderUnavailable ErrorKind = "PROVIDER_UNAVAILABLE"
	ErrProviderAuth        ErrorKind = "PROVIDER_AUTH"
	ErrProviderRateLimit   ErrorKind = "PROVIDER_RATE_LIMIT"
	ErrExtractionFailed    ErrorKind = "EXTRACTION_FAILED"
	ErrIncompleteCandidate ErrorKind = "INCOMPLETE_CANDIDATE"
	ErrSessionExpired      ErrorKind = "SESSION_EXPIRED"
	ErrInternal            ErrorKind = "INTERNAL"
)

// Error — типизированная ошибка пайплайна.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is позволяет errors.Is(err, &Error{Kind: X}) сравнивать по виду.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf достаёт вид ошибки; всё неизвестное — INTERNAL.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// FromProvider переводит ошибку шлюза в вид ошибки пайплайна.
func FromProvider(err error) *Error {
	var pe *ai.ProviderError
	if !errors.As(err, &pe) {
		return Wrap(ErrInternal, err, "provider call")
	}
	switch pe.Kind {
	case ai.ErrTimeout:
		return Wrap(ErrProviderTimeout, err, "")
	case ai.ErrRateLimit:
		return Wrap(ErrProviderRateLimit, err, "")
	case ai.ErrAuth:
		return Wrap(ErrProviderAuth, err, "")
	case ai.ErrMalformed:
		return Wrap(ErrExtractionFailed, err, "malformed provider response")
	}
	return Wrap(ErrProviderUnavailable, err, "")
}
