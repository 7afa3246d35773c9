package runstate

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestFrame_LookupWalksAncestors(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := NewRoot()
	root.Set("INPUT", cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1)}))
	branch := root.Push("ITEMS", 2, cty.StringVal("c"))
	branch.Set("DOUBLE", cty.NumberIntVal(6))

	// --- Act ---
	input, inputOK := branch.Lookup("INPUT")
	double, doubleOK := branch.Lookup("DOUBLE")
	_, leaked := root.Lookup("DOUBLE")
	_, local := branch.Local("INPUT")

	// --- Assert ---
	require.True(t, inputOK)
	assert.True(t, input.GetAttr("n").RawEquals(cty.NumberIntVal(1)))
	require.True(t, doubleOK)
	assert.True(t, double.RawEquals(cty.NumberIntVal(6)))
	assert.False(t, leaked)
	assert.False(t, local)
}

func TestFrame_Addresses(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	outer := root.Push("ITEMS", 2, cty.NumberIntVal(3))
	inner := outer.Push("WORDS", 0, cty.StringVal("w"))

	assert.Equal(t, "INPUT", root.Address("INPUT").String())
	assert.Equal(t, "ITEMS[2].DOUBLE", outer.Address("DOUBLE").String())
	assert.Equal(t, "ITEMS[2].WORDS[0].UPPER", inner.Address("UPPER").String())
	assert.Equal(t, []int{2, 0}, inner.Address("UPPER").Branches())
}

func TestFrame_EachIsInnermost(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	_, ok := root.Each()
	assert.False(t, ok)

	outer := root.Push("ITEMS", 1, cty.StringVal("outer"))
	inner := outer.Push("WORDS", 4, cty.StringVal("inner"))

	each, ok := inner.Each()
	require.True(t, ok)
	assert.Equal(t, 4, each.Index)
	assert.True(t, each.Value.RawEquals(cty.StringVal("inner")))
}

func TestFrame_Errors(t *testing.T) {
	t.Parallel()

	f := NewRoot()
	boom := errors.New("boom")
	f.SetError("FAIL", boom)
	f.Set("B", cty.True)
	f.Set("A", cty.False)

	assert.ErrorIs(t, f.Err("FAIL"), boom)
	assert.NoError(t, f.Err("A"))
	assert.NoError(t, f.Push("M", 0, cty.True).Err("FAIL"), "errors stay in their frame")
}

func TestFrame_ConcurrentBranches(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	var wg sync.WaitGroup
	frames := make([]*Frame, 50)
	for i := range frames {
		frames[i] = root.Push("ITEMS", i, cty.NumberIntVal(int64(i)))
		wg.Add(1)
		go func(f *Frame, i int) {
			defer wg.Done()
			f.Set("OUT", cty.NumberIntVal(int64(i*2)))
		}(frames[i], i)
	}
	wg.Wait()

	for i, f := range frames {
		v, ok := f.Local("OUT")
		require.True(t, ok)
		assert.True(t, v.RawEquals(cty.NumberIntVal(int64(i*2))))
	}
	_, leaked := root.Local("OUT")
	assert.False(t, leaked)
}
