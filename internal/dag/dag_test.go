package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	t.Parallel()
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)
	assert.Equal(t, 0, nodeA.seq)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)

	g.AddNode("b")
	assert.Len(t, g.nodes, 2)
	_, ok = g.nodes["b"]
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, "b")
		assert.Equal(t, nodeB, nodeA.dependents["b"])
		assert.Contains(t, nodeB.deps, "a")
		assert.Equal(t, nodeA, nodeB.deps["a"])
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("graph with nodes but no edges has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddNode("d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c")) // Transitive edge
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a")) // Cycle
		err := g.DetectCycles()
		assert.ErrorContains(t, err, "cycle detected")
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, "a", cycle.Node)
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddNode("d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("c", "d"))
		require.NoError(t, g.AddEdge("d", "a")) // Cycle back to the start
		err := g.DetectCycles()
		assert.Error(t, err)
		assert.ErrorContains(t, err, "cycle detected")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		// Component 1 (valid)
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))

		// Component 2 (has a cycle)
		g.AddNode("x")
		g.AddNode("y")
		g.AddNode("z")
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y")) // Cycle

		err := g.DetectCycles()
		assert.Error(t, err)
		assert.ErrorContains(t, err, "cycle detected")
	})
}

func TestDependencies_InsertionOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	g := New()
	for _, id := range []string{"input", "prompt", "search", "answer"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("search", "answer"))
	require.NoError(t, g.AddEdge("input", "answer"))
	require.NoError(t, g.AddEdge("prompt", "answer"))
	require.NoError(t, g.AddEdge("input", "search"))

	// --- Act ---
	deps, err := g.Dependencies("answer")
	require.NoError(t, err)
	dependents, err := g.Dependents("input")
	require.NoError(t, err)
	_, missingErr := g.Dependencies("nope")

	// --- Assert ---
	assert.Equal(t, []string{"input", "prompt", "search"}, deps)
	assert.Equal(t, []string{"search", "answer"}, dependents)
	assert.ErrorContains(t, missingErr, "node not found")
}

func TestTopologicalOrder(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		nodes   []string
		edges   [][2]string
		want    []string
		wantErr string
	}{
		{
			name:  "forward edges keep insertion order",
			nodes: []string{"a", "b", "c", "d"},
			edges: [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
			want:  []string{"a", "b", "c", "d"},
		},
		{
			name:  "backward edge moves the dependency first",
			nodes: []string{"late", "early", "free"},
			edges: [][2]string{{"early", "late"}},
			want:  []string{"early", "late", "free"},
		},
		{
			name:  "empty graph",
			want:  []string{},
		},
		{
			name:    "cycle",
			nodes:   []string{"a", "b"},
			edges:   [][2]string{{"a", "b"}, {"b", "a"}},
			wantErr: "cycle detected",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			g := New()
			for _, n := range tc.nodes {
				g.AddNode(n)
			}
			for _, e := range tc.edges {
				require.NoError(t, g.AddEdge(e[0], e[1]))
			}

			// --- Act ---
			got, err := g.TopologicalOrder()

			// --- Assert ---
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
