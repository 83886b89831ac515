package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the one error type that crosses the service/handler boundary.
// Status and Code are stable; Err carries the technical detail, which is
// logged server-side and never shown to clients.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

const (
	CodeAuthentication = "authentication_error"
	CodeRateLimited    = "rate_limited"
	CodeTimeout        = "timeout"
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeProvider       = "provider_error"
	CodeLimitReached   = "limit_reached"
)

func Authentication(err error) *Error {
	return New(http.StatusUnauthorized, CodeAuthentication, err)
}

func RateLimited(err error) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, err)
}

func Timeout(err error) *Error {
	return New(http.StatusGatewayTimeout, CodeTimeout, err)
}

func InvalidRequest(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

func Provider(err error) *Error {
	return New(http.StatusBadGateway, CodeProvider, err)
}

func LimitReached(err error) *Error {
	return New(http.StatusConflict, CodeLimitReached, err)
}

// Retryable reports whether the caller may safely retry with backoff.
// InvalidRequest, NotFound and LimitReached are terminal.
func Retryable(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case CodeRateLimited, CodeTimeout:
		return true
	}
	return false
}

// UserMessage maps a code to the short, non-technical message shown to
// end users.
func UserMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "Something went wrong. Please try again."
	}
	switch ae.Code {
	case CodeAuthentication:
		return "The AI provider rejected our credentials."
	case CodeRateLimited:
		return "We're sending requests too quickly. Please wait a moment."
	case CodeTimeout:
		return "The request took too long. Please try again."
	case CodeInvalidRequest:
		return "That request doesn't look right."
	case CodeNotFound:
		return "We couldn't find what you were looking for."
	case CodeLimitReached:
		return "This conversation has reached its limit. Please start a new one."
	default:
		return "Something went wrong. Please try again."
	}
}

// From maps any error to a typed Error, defaulting unknown failures to
// the opaque provider kind.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Provider(err)
}
