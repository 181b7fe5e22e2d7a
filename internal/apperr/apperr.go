// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyProcessed      = errors.New("assessment already processed")
	ErrInsufficientCredits   = errors.New("insufficient credits")
	ErrAssessmentsDisallowed = errors.New("borrower does not allow assessments")

	// ErrUpstreamAnalysis and ErrUpstreamParse are absorbed into fallback
	// results; they surface only in logs and in the analysis source.
	ErrUpstreamAnalysis = errors.New("upstream analysis failure")
	ErrUpstreamParse    = errors.New("upstream parse failure")

	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrNotConfigured = errors.New("integration not configured")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrTimeout       = errors.New("upstream timeout")
)

// Error attaches a user-facing message to a taxonomy sentinel.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// New returns an error of the given kind with a custom message.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Status maps an error to the HTTP status code handlers respond with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrAssessmentsDisallowed):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamAnalysis), errors.Is(err, ErrUpstreamParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text safe to show to the caller. Unknown errors are
// reported generically.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if Status(err) == http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}
