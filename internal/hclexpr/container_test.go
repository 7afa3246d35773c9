package hclexpr_test

import (
	"sync"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/llmgrid/internal/hclexpr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), "expression parsing failed: %s", diags.Error())
	return expr
}

func TestContainer_AddAndExtract(t *testing.T) {
	t.Parallel()

	c := hclexpr.NewContainer()
	c.Add(
		parseExpr(t, `upper("hello")`),
		parseExpr(t, `ITEMS.items`),
		parseExpr(t, `lower(PROMPT.text)`),
		parseExpr(t, `ITEMS.items`),
	)

	assert.Equal(t, []string{"lower", "upper"}, c.CalledFunctions())

	refs := c.References()
	require.Len(t, refs, 2)
	assert.Equal(t, []string{"ITEMS.items", "PROMPT.text"}, []string{
		hclexpr.TraversalKey(refs[0]),
		hclexpr.TraversalKey(refs[1]),
	})
}

func TestContainer_RootNames(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		exprs   []string
		exclude []string
		want    []string
	}{
		{"template references", []string{`"Double ${each.value} then ${INPUT.n}"`}, []string{"each"}, []string{"INPUT"}},
		{"duplicate roots", []string{`A.x + A.y`, `B[0]`}, nil, []string{"A", "B"}},
		{"for expression locals are not references", []string{`[for v in LIST.items : v * 2]`}, nil, []string{"LIST"}},
		{"literals only", []string{`1 + 2`}, nil, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := hclexpr.NewContainer()
			for _, src := range tc.exprs {
				c.Add(parseExpr(t, src))
			}

			got := c.RootNames(tc.exclude...)

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContainer_FunctionsInsideTemplatesAndLoops(t *testing.T) {
	t.Parallel()

	c := hclexpr.NewContainer()
	c.Add(parseExpr(t, `"${title(A.name)}"`), parseExpr(t, `[for s in B.items : trimspace(s)]`))

	assert.Equal(t, []string{"title", "trimspace"}, c.CalledFunctions())
}

func TestContainer_AddAfterExtract(t *testing.T) {
	t.Parallel()

	c := hclexpr.NewContainer()
	c.Add(parseExpr(t, `FIRST.value`))
	require.Len(t, c.References(), 1)

	c.Add(parseExpr(t, `SECOND.value`), parseExpr(t, `my_func()`))

	assert.Equal(t, []string{"my_func"}, c.CalledFunctions())
	assert.Equal(t, []string{"FIRST", "SECOND"}, c.RootNames())
	assert.Len(t, c.Expressions(), 3)
	ref, ok := c.FirstReference("SECOND")
	require.True(t, ok)
	assert.Equal(t, "SECOND.value", hclexpr.TraversalKey(ref))
}

func TestContainer_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := hclexpr.NewContainer()
	c.Add(parseExpr(t, `A.x`), parseExpr(t, `B.y`), parseExpr(t, `f()`))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				assert.Len(t, c.References(), 2)
			} else {
				assert.Len(t, c.CalledFunctions(), 1)
			}
		}()
	}
	wg.Wait()
}

func TestContainer_EdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("empty container", func(t *testing.T) {
		t.Parallel()
		c := hclexpr.NewContainer()
		assert.Empty(t, c.References())
		assert.Empty(t, c.CalledFunctions())
		assert.Empty(t, c.RootNames())
	})

	t.Run("nil expressions are ignored", func(t *testing.T) {
		t.Parallel()
		c := hclexpr.NewContainer()
		c.Add(nil, parseExpr(t, `A.b`), nil)
		assert.Len(t, c.References(), 1)
	})
}

type retryBody struct {
	MaxAttempts hcl.Expression `hcl:"max_attempts,optional"`
}

func (r *retryBody) Expressions() []hcl.Expression { return []hcl.Expression{r.MaxAttempts} }

func TestParseBlock(t *testing.T) {
	t.Parallel()

	parse := func(t *testing.T, src string) hcl.Blocks {
		t.Helper()
		file, diags := hclsyntax.ParseConfig([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
		require.False(t, diags.HasErrors(), diags.Error())
		content, _, diags := file.Body.PartialContent(&hcl.BodySchema{Blocks: []hcl.BlockHeaderSchema{{Type: "retry"}}})
		require.False(t, diags.HasErrors(), diags.Error())
		return content.Blocks
	}

	t.Run("decodes the unique block", func(t *testing.T) {
		t.Parallel()
		got, exprs, diags := hclexpr.ParseBlock[*retryBody](parse(t, "retry {\n max_attempts = 3\n}\n"), "retry")
		require.False(t, diags.HasErrors(), diags.Error())
		require.NotNil(t, got)
		assert.Len(t, exprs, 1)
	})

	t.Run("missing block is not an error", func(t *testing.T) {
		t.Parallel()
		got, _, diags := hclexpr.ParseBlock[*retryBody](parse(t, ""), "retry")
		assert.False(t, diags.HasErrors())
		assert.Nil(t, got)
	})

	t.Run("duplicate blocks are rejected", func(t *testing.T) {
		t.Parallel()
		_, _, diags := hclexpr.ParseBlock[*retryBody](parse(t, "retry {}\nretry {}\n"), "retry")
		require.True(t, diags.HasErrors())
		assert.Contains(t, diags.Error(), `Duplicate "retry" block`)
	})
}
