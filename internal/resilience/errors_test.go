package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline exceeded", context.DeadlineExceeded, KindTransient},
		{"canceled", context.Canceled, KindTransient},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTransient},
		{"net error", timeoutErr{}, KindTransient},
		{"rate limit", errors.New("openai: rate limit exceeded"), KindTransient},
		{"http 429", errors.New("unexpected status 429"), KindTransient},
		{"http 503", errors.New("503 service unavailable"), KindTransient},
		{"overloaded", errors.New("model overloaded, try again"), KindTransient},
		{"connection reset", errors.New("read: connection reset by peer"), KindTransient},
		{"connection refused", errors.New("dial tcp: connection refused"), KindTransient},
		{"timeout text", errors.New("request timeout"), KindTransient},
		{"bad request", errors.New("invalid request: missing model"), KindPermanent},
		{"auth", errors.New("401 unauthorized"), KindPermanent},
		{"unknown model", errors.New("model does not exist"), KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyKind(tt.err); got != tt.want {
				t.Errorf("classifyKind(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyWrapsOnce(t *testing.T) {
	t.Parallel()
	base := errors.New("connection reset")
	wrapped := Classify("openai", base)

	var pe *ProviderError
	if !errors.As(wrapped, &pe) {
		t.Fatalf("Classify did not produce a ProviderError: %v", wrapped)
	}
	if pe.Provider != "openai" || pe.Kind != KindTransient {
		t.Errorf("ProviderError = %+v", pe)
	}
	if !errors.Is(wrapped, base) {
		t.Error("classification must preserve the error chain")
	}

	// Classifying an already-classified error is a no-op.
	if again := Classify("elevenlabs", wrapped); again != wrapped {
		t.Error("Classify re-wrapped an already classified error")
	}
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()
	if err := Classify("openai", nil); err != nil {
		t.Errorf("Classify(nil) = %v, want nil", err)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	if !IsTransient(Classify("p", errors.New("timeout"))) {
		t.Error("classified transient error not reported transient")
	}
	if IsTransient(Classify("p", errors.New("invalid api key"))) {
		t.Error("permanent error reported transient")
	}
	if IsTransient(nil) {
		t.Error("nil reported transient")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()
	pe := &ProviderError{Provider: "elevenlabs", Kind: KindPermanent, Err: errors.New("voice not found")}
	want := "elevenlabs provider (permanent): voice not found"
	if pe.Error() != want {
		t.Errorf("Error() = %q, want %q", pe.Error(), want)
	}
}
