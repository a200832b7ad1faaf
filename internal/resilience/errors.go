// Package resilience classifies provider errors and applies the engine's
// bounded retry policy.
//
// Every provider call in the turn pipeline runs through [Do]: one attempt with
// a per-attempt deadline, and for transient failures exactly one retry. Errors
// are classified into transient (timeouts, cancellations, rate limits,
// connectivity) and permanent (bad request, auth, anything else); permanent
// failures are never retried because a second identical call would fail the
// same way.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind categorises a provider failure for retry decisions and metrics.
type Kind string

const (
	// KindTransient marks failures that may succeed on retry: timeouts,
	// connectivity errors, rate limits, 5xx responses.
	KindTransient Kind = "transient"

	// KindPermanent marks failures that will not succeed on retry: invalid
	// requests, authentication errors, model rejections.
	KindPermanent Kind = "permanent"
)

// ProviderError wraps a provider failure with its classification and the
// provider name for logging and metrics.
type ProviderError struct {
	// Provider names the failing backend (e.g., "openai", "elevenlabs").
	Provider string

	// Kind is the failure classification.
	Kind Kind

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider (%s): %v", e.Provider, e.Kind, e.Err)
}

// Unwrap exposes the underlying error to errors.Is / errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether the error may succeed on retry.
func (e *ProviderError) Transient() bool {
	return e.Kind == KindTransient
}

// Classify wraps err in a [ProviderError] with a best-effort transient /
// permanent classification. A nil err returns nil.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	return &ProviderError{
		Provider: provider,
		Kind:     classifyKind(err),
		Err:      err,
	}
}

// classifyKind decides transient vs permanent for a raw error.
func classifyKind(err error) Kind {
	// Deadline and cancellation are retryable with a fresh deadline.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	// Provider SDKs wrap HTTP statuses into message text; this catches the
	// common retryable cases without depending on each SDK's error type.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "429", "500", "502", "503", "504",
		"overloaded", "connection reset", "connection refused",
		"timeout", "temporarily",
	} {
		if strings.Contains(msg, marker) {
			return KindTransient
		}
	}

	return KindPermanent
}

// IsTransient reports whether err is classified as transient. Unclassified
// errors are run through the same heuristics as [Classify].
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return classifyKind(err) == KindTransient
}
