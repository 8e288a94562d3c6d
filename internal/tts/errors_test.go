package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		code      int
		want      ErrorKind
		retryable bool
	}{
		{0, KindNetworkOrUnknown, true},
		{200, KindNetworkOrUnknown, true},
		{400, KindClientError, false},
		{401, KindClientError, false},
		{404, KindClientError, false},
		{429, KindRateLimited, true},
		{500, KindServerError, true},
		{503, KindServerError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := KindOf(tt.code); got != tt.want {
				t.Errorf("KindOf(%d) = %v, want %v", tt.code, got, tt.want)
			}
			e := NewProviderError("x", tt.code, nil)
			if e.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", e.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestNewHTTPError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		message string
		typ     string
	}{
		{
			name:    "wrapped envelope",
			code:    401,
			body:    `{"error": {"message": "Incorrect API key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			message: "Incorrect API key",
			typ:     "invalid_request_error",
		},
		{
			name:    "bare detail",
			code:    400,
			body:    `{"message": "voice not found"}`,
			message: "voice not found",
		},
		{
			name:    "plain text",
			code:    502,
			body:    "  upstream unavailable\n",
			message: "upstream unavailable",
		},
		{
			name: "empty body",
			code: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewHTTPError(tt.code, []byte(tt.body))
			if e.StatusCode != tt.code {
				t.Errorf("StatusCode = %d, want %d", e.StatusCode, tt.code)
			}
			if tt.message == "" {
				if e.Detail != nil {
					t.Errorf("expected no detail, got %+v", e.Detail)
				}
				return
			}
			if e.Detail == nil {
				t.Fatal("expected a detail")
			}
			if e.Detail.Message != tt.message || e.Detail.Type != tt.typ {
				t.Errorf("detail = %+v", e.Detail)
			}
			if !strings.Contains(e.Error(), tt.message) {
				t.Errorf("Error() %q does not include the message", e.Error())
			}
		})
	}
}

func TestProviderError_Error(t *testing.T) {
	e := NewProviderError("Too Many Requests", 429, errors.New("slow down"))
	want := "Too Many Requests (status 429): slow down"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestAsProviderError(t *testing.T) {
	if AsProviderError(nil) != nil {
		t.Error("nil error should stay nil")
	}

	orig := NewHTTPError(503, nil)
	wrapped := fmt.Errorf("chunk 3: %w", orig)
	if got := AsProviderError(wrapped); got != orig {
		t.Errorf("expected the wrapped envelope, got %v", got)
	}

	plain := errors.New("connection reset")
	got := AsProviderError(plain)
	if got.Kind() != KindNetworkOrUnknown || !errors.Is(got, plain) {
		t.Errorf("plain error wrapped as %+v", got)
	}

	timeout := AsProviderError(fmt.Errorf("call: %w", context.DeadlineExceeded))
	if timeout.Status != "request timed out" || !timeout.IsRetryable() {
		t.Errorf("timeout wrapped as %+v", timeout)
	}
}

func TestErrorKind_String(t *testing.T) {
	if KindRateLimited.String() != "rate_limited" {
		t.Errorf("got %q", KindRateLimited.String())
	}
	if ErrorKind(42).String() != "unknown" {
		t.Errorf("got %q", ErrorKind(42).String())
	}
}
