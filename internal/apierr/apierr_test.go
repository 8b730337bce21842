package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"provider and status", New(Transport, "anthropic", 401, "invalid x-api-key"), "anthropic error 401: invalid x-api-key"},
		{"provider only", New(Parse, "gemini", 0, "empty candidates"), "gemini error: empty candidates"},
		{"status only", New(ProviderLogic, "", 500, "server busy"), "error 500: server busy"},
		{"bare", New(Timeout, "", 0, "task timed out"), "task timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	base := New(Transport, "kie", 429, "rate limited")
	wrapped := fmt.Errorf("generate image: %w", base)

	if got := KindOf(wrapped); got != Transport {
		t.Errorf("KindOf() = %q, want %q", got, Transport)
	}
	if got := StatusCode(wrapped); got != 429 {
		t.Errorf("StatusCode() = %d, want 429", got)
	}
	if IsTimeout(wrapped) {
		t.Error("IsTimeout() = true for a transport error")
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Transport, "cohere", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Message != "connection reset" {
		t.Errorf("Message = %q, want %q", err.Message, "connection reset")
	}
}
