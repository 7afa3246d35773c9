package dag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, nodes []string, edges [][2]string) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestExecutor_RespectsDependencies(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	g := buildGraph(t,
		[]string{"fetch", "parse", "summarize", "store"},
		[][2]string{{"fetch", "parse"}, {"parse", "summarize"}, {"parse", "store"}, {"summarize", "store"}},
	)
	var mu sync.Mutex
	var order []string

	// --- Act ---
	err := NewExecutor(g, 4).Run(ctx, func(ctx context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, id)
		return nil
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "parse", "summarize", "store"}, order)
}

func TestExecutor_RunsIndependentNodesConcurrently(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	g := buildGraph(t, []string{"a", "b", "c"}, nil)
	var running, peak atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 3)

	go func() {
		for i := 0; i < 3; i++ {
			<-started
		}
		close(release)
	}()

	// --- Act ---
	err := NewExecutor(g, 3).Run(ctx, func(ctx context.Context, id string) error {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		started <- struct{}{}
		<-release
		running.Add(-1)
		return nil
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, int32(3), peak.Load())
}

func TestExecutor_FailureSkipsOnlyDependents(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	// bad -> child -> grandchild ; good -> after ; slow is independent.
	g := buildGraph(t,
		[]string{"bad", "child", "grandchild", "good", "after", "slow"},
		[][2]string{{"bad", "child"}, {"child", "grandchild"}, {"good", "after"}},
	)
	boom := errors.New("boom")
	var ran sync.Map

	// --- Act ---
	exec := NewExecutor(g, 2)
	err := exec.Run(ctx, func(ctx context.Context, id string) error {
		ran.Store(id, true)
		if id == "slow" {
			time.Sleep(20 * time.Millisecond)
		}
		if id == "bad" {
			return boom
		}
		return nil
	})

	// --- Assert ---
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "execution failed for bad")

	for _, id := range []string{"good", "after", "slow"} {
		state, nodeErr := exec.Outcome(id)
		assert.Equal(t, Done, state, id)
		assert.NoError(t, nodeErr, id)
	}
	for _, id := range []string{"child", "grandchild"} {
		_, wasRun := ran.Load(id)
		assert.False(t, wasRun, id)
		state, nodeErr := exec.Outcome(id)
		assert.Equal(t, Failed, state, id)
		assert.ErrorIs(t, nodeErr, ErrSkipped, id)
	}
}

func TestExecutor_RootCauseFollowsInsertionOrder(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	g := buildGraph(t, []string{"first", "second"}, nil)
	errFirst := errors.New("first failed")
	errSecond := errors.New("second failed")

	// --- Act ---
	err := NewExecutor(g, 2).Run(ctx, func(ctx context.Context, id string) error {
		if id == "first" {
			time.Sleep(10 * time.Millisecond)
			return errFirst
		}
		return errSecond
	})

	// --- Assert ---
	require.ErrorIs(t, err, errFirst)
	assert.ErrorContains(t, err, "execution failed for first, second")
}

func TestExecutor_DiamondSkippedOnce(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	g := buildGraph(t,
		[]string{"root", "left", "right", "join"},
		[][2]string{{"root", "left"}, {"root", "right"}, {"left", "join"}, {"right", "join"}},
	)

	// --- Act ---
	exec := NewExecutor(g, 1)
	err := exec.Run(ctx, func(ctx context.Context, id string) error {
		return errors.New("root failed")
	})

	// --- Assert ---
	require.Error(t, err)
	state, nodeErr := exec.Outcome("join")
	assert.Equal(t, Failed, state)
	assert.ErrorIs(t, nodeErr, ErrSkipped)
}

func TestExecutor_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	// --- Arrange ---
	g := buildGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	var calls atomic.Int32

	// --- Act ---
	err := NewExecutor(g, 2).Run(ctx, func(ctx context.Context, id string) error {
		calls.Add(1)
		return nil
	})

	// --- Assert ---
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestExecutor_RejectsCycles(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	g := buildGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "a"}})

	err := NewExecutor(g, 1).Run(ctx, func(ctx context.Context, id string) error { return nil })

	assert.ErrorContains(t, err, "cycle detected")
}

func TestExecutor_EmptyGraph(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.NewContext(t)

	err := NewExecutor(New(), 0).Run(ctx, func(ctx context.Context, id string) error { return nil })

	assert.NoError(t, err)
}
