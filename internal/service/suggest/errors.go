package suggest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"ai-conversation-assist-service/internal/models"
)

// Error is a classified backend failure.
type Error struct {
	Kind       models.ErrorKind
	StatusCode int // 0 for failures below HTTP
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("suggest: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("suggest: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps a non-2xx HTTP status to an error kind.
func ClassifyStatus(status int, body []byte) *Error {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	kind := models.ErrorBadRequest
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = models.ErrorAuth
	case status == http.StatusTooManyRequests:
		kind = models.ErrorRateLimit
	case status == http.StatusRequestTimeout || status >= 500:
		kind = models.ErrorTransient
	}
	return &Error{Kind: kind, StatusCode: status, Message: msg}
}

// NewNetworkError wraps a failure below the HTTP layer.
func NewNetworkError(err error) *Error {
	return &Error{Kind: models.ErrorNetwork, Message: err.Error(), Err: err}
}

// NewAuthError reports missing or rejected credentials.
func NewAuthError(msg string) *Error {
	return &Error{Kind: models.ErrorAuth, Message: msg}
}

// Classify converts any provider error into an *Error. Provider adapters
// should already return *Error; anything else is treated as a network failure
// when it looks like one and as transient otherwise.
func Classify(err error) *Error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}

	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkError(err)
	}
	return &Error{Kind: models.ErrorTransient, Message: err.Error(), Err: err}
}

// KindOf returns the kind of a Generate error.
func KindOf(err error) models.ErrorKind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return models.ErrorTransient
}

// UserMessage returns the short text shown to the operator for a failure.
func UserMessage(kind models.ErrorKind) string {
	switch kind {
	case models.ErrorAuth:
		return "Suggestion service rejected the API key. Check the provider credentials."
	case models.ErrorRateLimit:
		return "Suggestion service is rate limited. Please wait a moment."
	case models.ErrorNetwork:
		return "Could not reach the suggestion service."
	case models.ErrorBadRequest:
		return "Suggestion service rejected the request."
	default:
		return "Suggestion service is temporarily unavailable."
	}
}
