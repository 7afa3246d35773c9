// Package storetest is a conformance suite every store backend runs.
package storetest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/store"
	"github.com/specialistvlad/llmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backend tells the suite how to open a fresh store and how to corrupt one
// stored record behind the contract's back.
type Backend struct {
	Open   func(t *testing.T) store.Store
	Tamper func(t *testing.T, s store.Store, id, hash string, idx int, record string)
}

// Run executes the suite.
func Run(t *testing.T, b Backend) {
	t.Run("register then load round trips", func(t *testing.T) {
		ctx, _ := testutil.NewContext(t)
		s := b.Open(t)

		// --- Arrange ---
		d, err := dataset.FromReader(ctx, "qa", strings.NewReader("{\"q\":\"a\",\"n\":1}\n{\"q\":\"b\",\"n\":2}\n"))
		require.NoError(t, err)

		// --- Act ---
		require.NoError(t, s.RegisterDataset(ctx, d))
		require.NoError(t, s.RegisterDataset(ctx, d), "registering twice must be a no-op")
		loaded, err := s.LoadDataset(ctx, "qa", d.Hash())

		// --- Assert ---
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, d.Records(), loaded.Records())
		assert.Equal(t, d.Keys(), loaded.Keys())
		assert.Equal(t, d.Hash(), loaded.Hash())
		assert.True(t, d.Created().Equal(loaded.Created()), "created time must survive storage")

		latest, err := s.LatestHash(ctx, "qa")
		require.NoError(t, err)
		assert.Equal(t, d.Hash(), latest)

		versions, err := s.ListDatasets(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, 2, versions[0].Records)
	})

	t.Run("missing version is absent, not an error", func(t *testing.T) {
		ctx, _ := testutil.NewContext(t)
		s := b.Open(t)

		d, err := s.LoadDataset(ctx, "nope", "0000")
		require.NoError(t, err)
		assert.Nil(t, d)

		latest, err := s.LatestHash(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, latest)
	})

	t.Run("tampered record fails integrity check", func(t *testing.T) {
		ctx, _ := testutil.NewContext(t)
		s := b.Open(t)

		// --- Arrange ---
		d, err := dataset.FromReader(ctx, "qa", strings.NewReader("{\"a\":1}\n{\"a\":2}\n"))
		require.NoError(t, err)
		require.NoError(t, s.RegisterDataset(ctx, d))
		b.Tamper(t, s, "qa", d.Hash(), 1, `{"a":3}`)

		// --- Act ---
		_, err = s.LoadDataset(ctx, "qa", d.Hash())

		// --- Assert ---
		var integrityErr *dataset.IntegrityError
		require.ErrorAs(t, err, &integrityErr)
		assert.Equal(t, d.Hash(), integrityErr.Want)
	})

	t.Run("empty dataset round trips", func(t *testing.T) {
		ctx, _ := testutil.NewContext(t)
		s := b.Open(t)

		d, err := dataset.FromReader(ctx, "empty", strings.NewReader(""))
		require.NoError(t, err)
		require.NoError(t, s.RegisterDataset(ctx, d))

		loaded, err := s.LoadDataset(ctx, "empty", d.Hash())
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, 0, loaded.Len())
	})

	t.Run("cache get and put", func(t *testing.T) {
		ctx, _ := testutil.NewContext(t)
		s := b.Open(t)

		_, ok, err := s.GetCachedBlockResult(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.PutCachedBlockResult(ctx, "k1", json.RawMessage(`{"v":1}`)))
		require.NoError(t, s.PutCachedBlockResult(ctx, "k1", json.RawMessage(`{"v":2}`)))

		got, ok, err := s.GetCachedBlockResult(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"v":2}`, string(got), "last write wins")
	})

	t.Run("concurrent puts on distinct keys", func(t *testing.T) {
		ctx, _ := testutil.NewContext(t)
		s := b.Open(t)

		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.PutCachedBlockResult(ctx, fmt.Sprintf("key-%d", i), json.RawMessage(fmt.Sprintf("%d", i))))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 32; i++ {
			got, ok, err := s.GetCachedBlockResult(ctx, fmt.Sprintf("key-%d", i))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, fmt.Sprintf("%d", i), string(got))
		}
	})
}
