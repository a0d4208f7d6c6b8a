package vision

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode is the closed set of provider error kinds. The code decides
// retry versus failover behavior, so providers must map every failure into
// one of these.
type ErrorCode string

const (
	// ErrAuthentication means the credential is bad or missing. Never retried.
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	// ErrRateLimited means the provider throttled us. Retried with backoff,
	// honoring the RetryAfter hint when present.
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrQuotaExceeded means billing/quota is exhausted. Not retried, but
	// eligible for failover to a different provider.
	ErrQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// ErrServiceUnavailable is a transient outage. Retried with backoff.
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrInvalidImage is a precondition failure on the input file. The defect
	// is caller-side and identical across providers, so it is never retried
	// and never failed over.
	ErrInvalidImage ErrorCode = "INVALID_IMAGE"
	// ErrProvider is the catch-all for everything else. Not retried.
	ErrProvider ErrorCode = "PROVIDER_ERROR"
)

// Error is the structured error every provider operation surfaces.
type Error struct {
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Retryable  bool          `json:"retryable"`
	Provider   string        `json:"provider,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Cause      error         `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: code == ErrRateLimited || code == ErrServiceUnavailable,
	}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithProvider sets the originating provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithRetryAfter records a provider-supplied retry hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Code == code
}

// IsRetryable reports whether err should be retried by the retry handler.
func IsRetryable(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Retryable
}

// MapHTTPError converts an HTTP failure status from a provider API into the
// taxonomy. Quota exhaustion hides behind 402 on some vendors and behind 400
// with a quota/credit keyword on others.
func MapHTTPError(status int, msg, provider string, retryAfter time.Duration) *Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Code: ErrAuthentication, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider, RetryAfter: retryAfter}
	case http.StatusPaymentRequired:
		return &Error{Code: ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "billing") {
			return &Error{Code: ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &Error{Code: ErrProvider, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &Error{Code: ErrServiceUnavailable, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		if status >= 500 {
			return &Error{Code: ErrServiceUnavailable, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
		}
		return &Error{Code: ErrProvider, Message: msg, HTTPStatus: status, Provider: provider}
	}
}
