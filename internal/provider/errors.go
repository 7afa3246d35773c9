package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/llmgrid/internal/retry"
)

// Kind classifies a provider failure.
type Kind int

const (
	// Unavailable covers 5xx answers and connection failures. Retryable.
	Unavailable Kind = iota
	// RateLimited is a 429 or equivalent. Retryable.
	RateLimited
	// InvalidRequest is a request the backend will never accept. Fatal.
	InvalidRequest
	// Timeout is an attempt that ran out of time. Retryable up to the policy
	// bound.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case InvalidRequest:
		return "invalid_request"
	case Timeout:
		return "timeout"
	default:
		return "unavailable"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	// StatusCode is the HTTP status when the failure came from one, else 0.
	StatusCode int
	// RetryAfter is the delay the backend asked for, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may try again.
func (e *Error) Retryable() bool {
	return e.Kind != InvalidRequest
}

// KindForStatus maps an HTTP status code to a kind. ok is false for codes
// that are not failures.
func KindForStatus(status int) (kind Kind, ok bool) {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return Timeout, true
	case status >= 500:
		return Unavailable, true
	case status >= 400:
		return InvalidRequest, true
	}
	return 0, false
}

// Classify converts an arbitrary backend error into an *Error. Errors that
// are already classified pass through unchanged.
func Classify(name string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Provider: name, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: Timeout, Provider: name, Err: err}
		}
		return &Error{Kind: Unavailable, Provider: name, Err: err}
	}
	return &Error{Kind: Unavailable, Provider: name, Err: err}
}

// RetryDecision is a retry.Classifier for provider errors. A canceled
// parent context is never retried.
func RetryDecision(err error) retry.Decision {
	if errors.Is(err, context.Canceled) {
		return retry.Decision{}
	}
	var pe *Error
	if !errors.As(err, &pe) {
		return retry.Decision{Retry: errors.Is(err, context.DeadlineExceeded)}
	}
	return retry.Decision{Retry: pe.Retryable(), After: pe.RetryAfter}
}

// Call runs fn under policy, retrying rate limits, unavailability and
// timeouts with backoff. It returns the number of retries made.
func Call[T any](ctx context.Context, policy retry.Policy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	return retry.Do(ctx, policy, RetryDecision, fn)
}
