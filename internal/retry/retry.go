// Package retry runs external calls with a per-attempt timeout and bounded
// exponential backoff. Providers and network-bound blocks share it.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
)

// Policy bounds retries of one logical call.
type Policy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Timeout applies to each attempt. Zero disables it.
	Timeout time.Duration
}

// DefaultPolicy is used when neither the block nor the config sets one.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Timeout:         60 * time.Second,
	}
}

// Decision tells Do what to make of a failed attempt.
type Decision struct {
	Retry bool
	// After overrides the backoff delay when positive, e.g. from a
	// Retry-After header.
	After time.Duration
}

// Classifier inspects an attempt's error.
type Classifier func(err error) Decision

// Do calls fn until it succeeds, the classifier refuses a retry, the attempt
// budget is spent or ctx is done. It returns the number of retries made in
// addition to the first attempt.
func Do[T any](ctx context.Context, p Policy, classify Classifier, fn func(ctx context.Context) (T, error)) (T, int, error) {
	logger := ctxlog.FromContext(ctx)

	b := &hintedBackOff{ExponentialBackOff: backoff.NewExponentialBackOff()}
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempts := 0
	op := func() (T, error) {
		attempts++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		d := classify(err)
		if !d.Retry {
			return v, backoff.Permanent(err)
		}
		b.hint = d.After
		return v, err
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Attempt failed, retrying.", "attempt", attempts, "max_attempts", maxAttempts, "next_in", next, "error", err)
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, attempts - 1, err
}

// hintedBackOff is an exponential backoff whose next delay can be overridden
// once by a server-provided hint.
type hintedBackOff struct {
	*backoff.ExponentialBackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.ExponentialBackOff.NextBackOff()
	if h.hint > 0 {
		next, h.hint = h.hint, 0
	}
	return next
}
