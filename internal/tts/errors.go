package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common TTS errors
var (
	// ErrNoProviderConfigured indicates no provider has been selected
	ErrNoProviderConfigured = errors.New("no TTS provider configured")

	// ErrUnknownProvider indicates an unknown provider was specified
	ErrUnknownProvider = errors.New("unknown TTS provider")

	// ErrEmptyText indicates there is nothing to synthesize
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrUnsupportedFormat indicates the requested audio format is not supported
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrSpeedOutOfRange is returned when speed is outside valid range
	ErrSpeedOutOfRange = errors.New("speed must be between 0.25 and 4.0")

	// ErrMissingAPIKey indicates the provider requires credentials
	ErrMissingAPIKey = errors.New("API key is required")
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	// KindNetworkOrUnknown has no status code; treated as transient.
	KindNetworkOrUnknown ErrorKind = iota
	// KindRateLimited is status 429.
	KindRateLimited
	// KindServerError is status >= 500.
	KindServerError
	// KindClientError is any other 4xx; terminal.
	KindClientError
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetworkOrUnknown:
		return "network_or_unknown"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindClientError:
		return "client_error"
	default:
		return "unknown"
	}
}

// KindOf classifies a status code. A zero code means no response was received.
func KindOf(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= 500:
		return KindServerError
	case statusCode >= 400:
		return KindClientError
	default:
		return KindNetworkOrUnknown
	}
}

// ErrorDetail is the structured payload some providers return with a failure.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ProviderError is the uniform envelope for synthesis failures.
type ProviderError struct {
	// Status is a short human readable status line.
	Status string
	// Detail is the optional structured payload.
	Detail *ErrorDetail
	// StatusCode is an HTTP or HTTP-like status. Zero means none.
	StatusCode int
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Status)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != nil && e.Detail.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Kind classifies the error from its status code.
func (e *ProviderError) Kind() ErrorKind {
	return KindOf(e.StatusCode)
}

// IsRetryable reports whether a later re-request may succeed.
func (e *ProviderError) IsRetryable() bool {
	return e.Kind() != KindClientError
}

// NewProviderError creates an envelope with a status code and optional cause.
func NewProviderError(status string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Status:     status,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewHTTPError builds an envelope from an HTTP error response. body may hold
// an OpenAI style {"error": {...}} object, a bare detail object, or plain text.
func NewHTTPError(statusCode int, body []byte) *ProviderError {
	e := &ProviderError{
		Status:     http.StatusText(statusCode),
		StatusCode: statusCode,
	}
	if e.Status == "" {
		e.Status = "HTTP error"
	}

	var wrapped struct {
		Error *ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil {
		e.Detail = wrapped.Error
		return e
	}

	var detail ErrorDetail
	if err := json.Unmarshal(body, &detail); err == nil && detail.Message != "" {
		e.Detail = &detail
		return e
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		e.Detail = &ErrorDetail{Message: msg}
	}
	return e
}

// AsProviderError returns err as a *ProviderError. Errors that do not carry an
// envelope are wrapped as NetworkOrUnknown.
func AsProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	status := "request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		status = "request timed out"
	}
	return &ProviderError{Status: status, Cause: err}
}
