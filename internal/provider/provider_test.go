package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/provider/stub"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := provider.NewRegistry()
	require.NoError(t, r.Register(stub.New("b", nil)))
	require.NoError(t, r.Register(stub.New("a", nil)))

	err := r.Register(stub.New("a", nil))
	require.ErrorContains(t, err, "already registered")

	assert.Equal(t, []string{"a", "b"}, r.Names())

	p, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name())

	_, err = r.Get("missing")
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.InvalidRequest, perr.Kind)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		err       error
		want      provider.Kind
		retryable bool
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), provider.Timeout, true},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, provider.Timeout, true},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, provider.Unavailable, true},
		{"already classified", &provider.Error{Kind: provider.InvalidRequest, Err: errors.New("x")}, provider.InvalidRequest, false},
		{"unknown", errors.New("boom"), provider.Unavailable, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := provider.Classify("p", tc.err)
			assert.Equal(t, tc.want, got.Kind)
			assert.Equal(t, tc.retryable, got.Retryable())
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status int
		want   provider.Kind
		ok     bool
	}{
		{http.StatusOK, 0, false},
		{http.StatusTooManyRequests, provider.RateLimited, true},
		{http.StatusBadRequest, provider.InvalidRequest, true},
		{http.StatusUnauthorized, provider.InvalidRequest, true},
		{http.StatusNotFound, provider.InvalidRequest, true},
		{http.StatusUnprocessableEntity, provider.InvalidRequest, true},
		{http.StatusGatewayTimeout, provider.Timeout, true},
		{http.StatusInternalServerError, provider.Unavailable, true},
		{http.StatusServiceUnavailable, provider.Unavailable, true},
	}
	for _, tc := range testCases {
		kind, ok := provider.KindForStatus(tc.status)
		assert.Equal(t, tc.ok, ok, "status %d", tc.status)
		if tc.ok {
			assert.Equal(t, tc.want, kind, "status %d", tc.status)
		}
	}
}

func TestCall(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		failures    []error
		attempts    int
		wantCalls   int
		wantRetries int
		wantErr     bool
	}{
		{
			name:        "rate limit is retried until success",
			failures:    []error{&provider.Error{Kind: provider.RateLimited, Err: errors.New("slow down")}},
			attempts:    3,
			wantCalls:   2,
			wantRetries: 1,
		},
		{
			name:        "invalid request is never retried",
			failures:    []error{&provider.Error{Kind: provider.InvalidRequest, Err: errors.New("bad")}},
			attempts:    3,
			wantCalls:   1,
			wantRetries: 0,
			wantErr:     true,
		},
		{
			name: "unavailable exhausts the attempt budget",
			failures: []error{
				&provider.Error{Kind: provider.Unavailable, Err: errors.New("down")},
				&provider.Error{Kind: provider.Unavailable, Err: errors.New("down")},
				&provider.Error{Kind: provider.Unavailable, Err: errors.New("down")},
			},
			attempts:    2,
			wantCalls:   2,
			wantRetries: 1,
			wantErr:     true,
		},
		{
			name:        "timeouts are retried",
			failures:    []error{&provider.Error{Kind: provider.Timeout, Err: context.DeadlineExceeded}},
			attempts:    2,
			wantCalls:   2,
			wantRetries: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, _ := testutil.NewContext(t)

			// --- Arrange ---
			calls := 0
			fn := func(ctx context.Context) (string, error) {
				calls++
				if calls <= len(tc.failures) {
					return "", tc.failures[calls-1]
				}
				return "ok", nil
			}

			// --- Act ---
			got, retries, err := provider.Call(ctx, fastPolicy(tc.attempts), fn)

			// --- Assert ---
			assert.Equal(t, tc.wantCalls, calls)
			assert.Equal(t, tc.wantRetries, retries)
			if tc.wantErr {
				var perr *provider.Error
				require.ErrorAs(t, err, &perr, "the classified error must survive retries")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
		})
	}
}

func TestCall_HonorsRetryAfter(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	calls := 0
	start := time.Now()
	_, retries, err := provider.Call(ctx, fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &provider.Error{Kind: provider.RateLimited, RetryAfter: 30 * time.Millisecond, Err: errors.New("429")}
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, retries)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestInstrument(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	t.Run("passes calls through and keeps the tokenizer reachable", func(t *testing.T) {
		s := stub.New("s", nil)
		p := provider.Instrument(s, 0)

		c, err := p.Complete(ctx, provider.CompletionRequest{Model: "m", Prompt: "two words"})
		require.NoError(t, err)
		assert.Equal(t, "two words", c.Text)
		assert.Equal(t, 1, s.Calls())
		assert.Equal(t, "s", p.Name())

		tok, ok := provider.TokenizerOf(p)
		require.True(t, ok)
		ids, err := tok.Encode("m", "a bb ccc")
		require.NoError(t, err)
		assert.Len(t, ids, 3)
	})

	t.Run("classifies backend errors", func(t *testing.T) {
		s := stub.New("s", func(context.Context, string, string) (string, error) {
			return "", errors.New("connection reset")
		})
		p := provider.Instrument(s, 0)

		_, err := p.Chat(ctx, provider.ChatRequest{Model: "m", Messages: []provider.Message{{Role: "user", Content: "x"}}})

		var perr *provider.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, provider.Unavailable, perr.Kind)
		assert.Equal(t, "s", perr.Provider)
	})

	t.Run("limiter paces calls", func(t *testing.T) {
		p := provider.Instrument(stub.New("s", nil), 20)

		start := time.Now()
		for i := 0; i < 25; i++ {
			_, err := p.Complete(ctx, provider.CompletionRequest{Model: "m", Prompt: "x"})
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond, "burst of 20 then 5 more at 20/s")
	})
}
