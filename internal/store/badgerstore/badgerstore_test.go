package badgerstore

import (
	"context"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/dataset"
	"github.com/specialistvlad/llmgrid/internal/store"
	"github.com/specialistvlad/llmgrid/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(ctxlog.Discard(context.Background()), Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, storetest.Backend{
		Open: func(t *testing.T) store.Store { return openMemory(t) },
		Tamper: func(t *testing.T, s store.Store, id, hash string, idx int, record string) {
			err := s.(*Store).DB().Update(func(txn *badger.Txn) error {
				return txn.Set(recordKey(id, hash, idx), []byte(record))
			})
			require.NoError(t, err)
		},
	})
}

func TestOpen_PersistentRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(ctxlog.Discard(context.Background()), Config{})

	require.Error(t, err)
}

func TestLatestHash_TracksNewestVersion(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())
	s := openMemory(t)

	// --- Arrange ---
	v1, err := dataset.FromReader(ctx, "qa", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	v2, err := dataset.FromReader(ctx, "qa", strings.NewReader(`{"a":2}`))
	require.NoError(t, err)

	// --- Act ---
	require.NoError(t, s.RegisterDataset(ctx, v2))
	require.NoError(t, s.RegisterDataset(ctx, v1))
	latest, err := s.LatestHash(ctx, "qa")

	// --- Assert ---
	require.NoError(t, err)
	if v2.Created().Equal(v1.Created()) {
		// Same millisecond: the later registration wins the tie.
		assert.Equal(t, v1.Hash(), latest)
	} else {
		assert.Equal(t, v2.Hash(), latest)
	}

	versions, err := s.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}
