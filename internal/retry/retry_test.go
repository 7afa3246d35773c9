package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func always(err error) Decision { return Decision{Retry: true} }
func never(err error) Decision  { return Decision{} }

func TestDo(t *testing.T) {
	t.Parallel()

	policy := Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	t.Run("first success makes no retries", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.NewContext(t)

		v, retries, err := Do(ctx, policy, always, func(context.Context) (int, error) { return 7, nil })

		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Zero(t, retries)
	})

	t.Run("stops at the attempt budget with the last error", func(t *testing.T) {
		t.Parallel()
		ctx, logs := testutil.NewContext(t)

		calls := 0
		_, retries, err := Do(ctx, policy, always, func(context.Context) (int, error) {
			calls++
			return 0, errTransient
		})

		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
		assert.Contains(t, logs.String(), "Attempt failed, retrying.")
	})

	t.Run("classifier can refuse a retry", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.NewContext(t)

		calls := 0
		_, retries, err := Do(ctx, policy, never, func(context.Context) (int, error) {
			calls++
			return 0, errTransient
		})

		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
		assert.Zero(t, retries)
	})

	t.Run("each attempt gets its own deadline", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.NewContext(t)

		p := policy
		p.MaxAttempts = 2
		p.Timeout = 10 * time.Millisecond
		calls := 0
		_, _, err := Do(ctx, p, always, func(ctx context.Context) (int, error) {
			calls++
			<-ctx.Done()
			return 0, ctx.Err()
		})

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 2, calls)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		t.Parallel()
		ctx, _ := testutil.NewContext(t)

		calls := 0
		_, _, err := Do(ctx, Policy{}, always, func(context.Context) (int, error) {
			calls++
			return 0, errTransient
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
